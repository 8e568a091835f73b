// Package dnsresolver resolves a domain's MX records, falling back to
// implicit-MX (A/AAAA) per RFC 5321 §5.1 when no MX record exists, and
// caches results for a configurable TTL. It is built directly on
// github.com/miekg/dns rather than net.Resolver so that NXDOMAIN/NODATA can
// be told apart from a timeout or SERVFAIL — net.Resolver collapses all of
// those into a single *net.DNSError and this engine needs the distinction
// (spec.md §4.2).
package dnsresolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/veriflow/engine/internal/model"
)

// Sentinel errors distinguishing DNS outcomes, mirrored after the pack's
// own dns resolver (synqronlabs-raven/dns).
var (
	ErrNotFound  = fmt.Errorf("dns: name or record not found")
	ErrServFail  = fmt.Errorf("dns: server failure")
	ErrRefused   = fmt.Errorf("dns: query refused")
)

// Config controls the resolver's network behaviour.
type Config struct {
	Nameservers []string
	Timeout     time.Duration
	Retries     int
	CacheTTL    time.Duration
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Retries == 0 {
		c.Retries = 1
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 10 * time.Minute
	}
	if len(c.Nameservers) == 0 {
		c.Nameservers = systemNameservers()
	}
}

func systemNameservers() []string {
	conf, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		if !strings.Contains(s, ":") {
			s += ":53"
		}
		servers = append(servers, s)
	}
	return servers
}

type cacheEntry struct {
	result    model.MxLookupResult
	expiresAt time.Time
}

// Resolver is the domain resolver component from spec.md §4.2.
type Resolver struct {
	cfg    Config
	client *mdns.Client
	log    *logrus.Entry

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New builds a Resolver. A zero Config gets sane defaults.
func New(cfg Config, log *logrus.Logger) *Resolver {
	cfg.setDefaults()
	if log == nil {
		log = logrus.New()
	}
	return &Resolver{
		cfg:    cfg,
		client: &mdns.Client{Timeout: cfg.Timeout},
		log:    log.WithField("component", "dnsresolver"),
		cache:  make(map[string]cacheEntry),
	}
}

func ensureFQDN(name string) string {
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}

// exchange queries a single RR type against the configured nameservers,
// retrying on transport failure and SERVFAIL/REFUSED, and classifying the
// final outcome into the sentinel errors above.
func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(ensureFQDN(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		for _, server := range r.cfg.Nameservers {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = err
				continue
			}
			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp, nil
			case mdns.RcodeNameError:
				return nil, ErrNotFound
			case mdns.RcodeServerFailure:
				lastErr = ErrServFail
				continue
			case mdns.RcodeRefused:
				lastErr = ErrRefused
				continue
			default:
				lastErr = fmt.Errorf("dns: unexpected rcode %d for %s", resp.Rcode, name)
				continue
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrServFail
}

// LookupMX resolves the domain's mail exchangers. When no MX record
// exists (NXDOMAIN/NODATA on the MX query) it falls back to the domain's
// own A/AAAA records, per RFC 5321 §5.1, and marks ViaImplicitMX. A
// transport timeout or SERVFAIL on the MX query itself is reported as
// Unknown rather than "no MX", since the two must not be conflated
// (spec.md §4.2).
func (r *Resolver) LookupMX(ctx context.Context, domain string) model.MxLookupResult {
	if cached, ok := r.lookupCache(domain); ok {
		return cached
	}

	result := r.resolveMX(ctx, domain)
	r.storeCache(domain, result)
	return result
}

func (r *Resolver) resolveMX(ctx context.Context, domain string) model.MxLookupResult {
	resp, err := r.exchange(ctx, domain, mdns.TypeMX)
	switch err {
	case nil:
		hosts := mxHosts(resp)
		if len(hosts) > 0 {
			return model.MxLookupResult{HasMX: true, Hosts: hosts}
		}
		// NODATA: the name exists but carries no MX RR set.
		return r.implicitMX(ctx, domain)
	case ErrNotFound:
		return r.implicitMX(ctx, domain)
	default:
		r.log.WithError(err).WithField("domain", domain).Debug("mx lookup failed")
		return model.MxLookupResult{Unknown: true}
	}
}

func mxHosts(resp *mdns.Msg) []string {
	type pref struct {
		host string
		p    uint16
	}
	var prefs []pref
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*mdns.MX); ok {
			prefs = append(prefs, pref{host: strings.TrimSuffix(mx.Mx, "."), p: mx.Preference})
		}
	}
	for i := 1; i < len(prefs); i++ {
		for j := i; j > 0 && prefs[j-1].p > prefs[j].p; j-- {
			prefs[j-1], prefs[j] = prefs[j], prefs[j-1]
		}
	}
	hosts := make([]string, 0, len(prefs))
	for _, p := range prefs {
		hosts = append(hosts, p.host)
	}
	return hosts
}

// implicitMX treats the bare domain as its own mail host when it resolves
// to an address record, per RFC 5321 §5.1's fallback rule.
func (r *Resolver) implicitMX(ctx context.Context, domain string) model.MxLookupResult {
	hasA, err := r.hasAddress(ctx, domain, mdns.TypeA)
	if err != nil && err != ErrNotFound {
		return model.MxLookupResult{Unknown: true}
	}
	if hasA {
		return model.MxLookupResult{HasMX: true, Hosts: []string{domain}, ViaImplicitMX: true}
	}

	hasAAAA, err := r.hasAddress(ctx, domain, mdns.TypeAAAA)
	if err != nil && err != ErrNotFound {
		return model.MxLookupResult{Unknown: true}
	}
	if hasAAAA {
		return model.MxLookupResult{HasMX: true, Hosts: []string{domain}, ViaImplicitMX: true}
	}

	return model.MxLookupResult{HasMX: false}
}

func (r *Resolver) hasAddress(ctx context.Context, domain string, qtype uint16) (bool, error) {
	resp, err := r.exchange(ctx, domain, qtype)
	if err != nil {
		return false, err
	}
	return len(resp.Answer) > 0, nil
}

// LookupTXT returns the joined TXT record strings for name, used by the
// domain-signals collectors for SPF/DMARC/MTA-STS/BIMI/DKIM.
func (r *Resolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := r.exchange(ctx, name, mdns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var records []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *Resolver) lookupCache(domain string) (model.MxLookupResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[domain]
	if !ok || time.Now().After(entry.expiresAt) {
		return model.MxLookupResult{}, false
	}
	return entry.result, true
}

func (r *Resolver) storeCache(domain string, result model.MxLookupResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[domain] = cacheEntry{result: result, expiresAt: time.Now().Add(r.cfg.CacheTTL)}
}

// Sweep evicts expired cache entries. Intended to be called periodically
// by the background worker (spec.md §5).
func (r *Resolver) Sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for domain, entry := range r.cache {
		if now.After(entry.expiresAt) {
			delete(r.cache, domain)
		}
	}
}

// CacheSize reports the current number of cached domains, for metrics/tests.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
