// Package serverstats tracks per-MX-host rolling SMTP behaviour so the
// prober can flag hosts whose accept rate is suspiciously high —
// classic catch-all behaviour that a single two-probe session can miss
// if the random probe happens to also get silently accepted upstream of
// the real mailbox check (spec.md §4.7).
package serverstats

import (
	"sync"
	"time"

	"github.com/veriflow/engine/internal/model"
)

const (
	minProbesBeforeJudging = 10
	catchAllAcceptRate     = 0.9
	idleEviction           = 7 * 24 * time.Hour
)

type counts struct {
	total     int
	accepted  int
	rejected  int
	catchAll  int
	updatedAt time.Time
}

// Cache is the process-wide rolling-behaviour store. It implements
// smtpprobe.ServerStats.
type Cache struct {
	mu   sync.Mutex
	byMX map[string]*counts
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{byMX: make(map[string]*counts)}
}

// Record tallies a verdict for host.
func (c *Cache) Record(host string, kind model.SmtpVerdictKind) {
	if host == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byMX[host]
	if !ok {
		e = &counts{}
		c.byMX[host] = e
	}
	e.total++
	e.updatedAt = time.Now()
	switch kind {
	case model.SmtpAccepted:
		e.accepted++
	case model.SmtpRejected:
		e.rejected++
	case model.SmtpCatchAll:
		e.catchAll++
	}
}

// IsSuspectedCatchAll reports whether host's historical accept rate
// (accepted+catchAll)/total exceeds the threshold, once enough probes
// have accumulated to make the rate meaningful.
func (c *Cache) IsSuspectedCatchAll(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byMX[host]
	if !ok || e.total < minProbesBeforeJudging {
		return false
	}
	rate := float64(e.accepted+e.catchAll) / float64(e.total)
	return rate > catchAllAcceptRate
}

// Sweep evicts hosts idle for more than idleEviction, called by the
// background worker's periodic sweep (spec.md §5).
func (c *Cache) Sweep() {
	cutoff := time.Now().Add(-idleEviction)
	c.mu.Lock()
	defer c.mu.Unlock()
	for host, e := range c.byMX {
		if e.updatedAt.Before(cutoff) {
			delete(c.byMX, host)
		}
	}
}

// Size reports the number of tracked hosts, for metrics/tests.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byMX)
}
