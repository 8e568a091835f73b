// Package ratelimit implements the four admission gates every verify
// request passes through before any DNS/SMTP/provider work starts:
// per-identity RPM (with exponential violator backoff), a batch-size
// cap, a per-identity daily email cap, and a global daily ceiling, plus
// a per-identity concurrency semaphore. Everything lives in process
// memory by default; an optional Redis-backed store mirrors the
// teacher's fiber.Storage-shaped RedisStorage for multi-instance
// deployments.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config carries every threshold spec.md §6 lists as configurable.
type Config struct {
	MaxBatchSize int

	IdentityRPM           int
	IdentityDailyCap      int
	IdentityMaxConcurrent int

	AgentRPM           int
	AgentDailyCap      int
	AgentMaxConcurrent int

	GlobalDailyCap int
}

func (c *Config) setDefaults() {
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 500
	}
	if c.IdentityRPM == 0 {
		c.IdentityRPM = 30
	}
	if c.IdentityDailyCap == 0 {
		c.IdentityDailyCap = 2000
	}
	if c.IdentityMaxConcurrent == 0 {
		c.IdentityMaxConcurrent = 2
	}
	if c.AgentRPM == 0 {
		c.AgentRPM = 120
	}
	if c.AgentDailyCap == 0 {
		c.AgentDailyCap = 20000
	}
	if c.AgentMaxConcurrent == 0 {
		c.AgentMaxConcurrent = 8
	}
	if c.GlobalDailyCap == 0 {
		c.GlobalDailyCap = 200000
	}
}

// Reason identifies which gate refused admission.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonBatchTooLarge   Reason = "batch_too_large"
	ReasonRPMExceeded     Reason = "rpm_exceeded"
	ReasonDailyCapReached Reason = "daily_cap_reached"
	ReasonGlobalCeiling   Reason = "global_daily_ceiling"
	ReasonConcurrency     Reason = "concurrency_limit"
)

// Decision is the outcome of Admit: either the request proceeds with
// Reserved addresses (Reserved may be less than requested, when the
// daily cap only has partial room left), or it is refused with Reason
// and, where meaningful, RetryAfter.
type Decision struct {
	Allowed    bool
	Reserved   int
	Reason     Reason
	RetryAfter time.Duration
}

// Release must be called exactly once, in a defer, after work started
// by an Allowed Decision finishes — it releases the concurrency slot.
type Release func()

// Store is the pluggable per-identity counter backend. The in-process
// implementation and a Redis-backed one both satisfy it.
type Store interface {
	// Increment adds delta to the bucket for key, creating it with the
	// given TTL if absent, and returns the new total. Used for the RPM
	// gate's fixed per-minute increment and for giving back unused
	// reservations; never for the cap check itself, which must be
	// atomic end-to-end (see TryReserve).
	Increment(ctx context.Context, key string, delta int, ttl time.Duration) (int, error)
	// Get returns the current value for key, or 0 if absent.
	Get(ctx context.Context, key string) (int, error)
	// TryReserve atomically reserves min(requested, cap-current) units
	// against key's running total, creating the bucket with the given
	// TTL if absent. The check-and-increment happens as one operation
	// so two concurrent callers near the cap can never both observe
	// the same "remaining" value and jointly oversubscribe it. Returns
	// the number of units actually granted, and false only when none
	// could be granted at all (current already at or past cap).
	TryReserve(ctx context.Context, key string, limit, requested int, ttl time.Duration) (granted int, ok bool)
}

// Limiter is the full four-gate admission pipeline plus the
// concurrency semaphores, keyed by identity.
type Limiter struct {
	cfg   Config
	store Store

	mu     sync.Mutex
	sems   map[string]chan struct{}
	viol   map[string]int
	violAt map[string]time.Time
}

// New builds a Limiter. store may be nil, in which case an in-process
// map-backed store is used.
func New(cfg Config, store Store) *Limiter {
	cfg.setDefaults()
	if store == nil {
		store = newMemoryStore()
	}
	return &Limiter{
		cfg:    cfg,
		store:  store,
		sems:   make(map[string]chan struct{}),
		viol:   make(map[string]int),
		violAt: make(map[string]time.Time),
	}
}

// Identity describes who is making the request, for gate threshold
// selection and key derivation.
type Identity struct {
	Key     string // agent UID or client IP
	IsAgent bool
}

// sweepable is implemented by Store backends that keep their own
// in-process state (the in-memory default); the Redis-backed store
// relies on key TTLs instead and does not implement it.
type sweepable interface {
	Sweep()
}

// Sweep evicts expired backend entries and stale violator-backoff
// bookkeeping, called from the background worker's periodic tick
// alongside every other evidence cache's Sweep.
func (l *Limiter) Sweep() {
	if s, ok := l.store.(sweepable); ok {
		s.Sweep()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for key, at := range l.violAt {
		if now.Sub(at) > time.Hour {
			delete(l.violAt, key)
			delete(l.viol, key)
		}
	}
}

// Admit runs the four gates in order for one request asking to verify
// requestedCount addresses. On success it also acquires the
// concurrency slot; the caller must invoke the returned Release when
// done, regardless of outcome path, only when Allowed is true.
func (l *Limiter) Admit(ctx context.Context, id Identity, requestedCount int) (Decision, Release) {
	rpmLimit, dailyCap, maxConcurrent := l.thresholds(id)

	if !l.checkRPM(ctx, id.Key, rpmLimit) {
		retryAfter := l.violatorBackoff(id.Key)
		return Decision{Allowed: false, Reason: ReasonRPMExceeded, RetryAfter: retryAfter}, nil
	}

	if requestedCount > l.cfg.MaxBatchSize {
		return Decision{Allowed: false, Reason: ReasonBatchTooLarge}, nil
	}

	reserved, ok := l.reserveDaily(ctx, dailyKey(id.Key), dailyCap, requestedCount)
	if !ok {
		return Decision{Allowed: false, Reason: ReasonDailyCapReached, RetryAfter: timeToMidnightUTC()}, nil
	}

	globalReserved, ok := l.reserveDaily(ctx, globalDailyKeyFor(), l.cfg.GlobalDailyCap, reserved)
	if !ok {
		l.releaseDaily(ctx, dailyKey(id.Key), reserved)
		return Decision{Allowed: false, Reason: ReasonGlobalCeiling, RetryAfter: timeToMidnightUTC()}, nil
	}
	if globalReserved < reserved {
		// Global ceiling only had partial room; give back the unused
		// per-identity reservation too, so the identity's own daily
		// bucket doesn't silently shrink for addresses it never got to use.
		l.releaseDaily(ctx, dailyKey(id.Key), reserved-globalReserved)
		reserved = globalReserved
	}

	release, ok := l.acquireConcurrency(id.Key, maxConcurrent)
	if !ok {
		l.releaseDaily(ctx, dailyKey(id.Key), reserved)
		l.releaseDaily(ctx, globalDailyKeyFor(), reserved)
		return Decision{Allowed: false, Reason: ReasonConcurrency}, nil
	}

	return Decision{Allowed: true, Reserved: reserved}, release
}

func (l *Limiter) thresholds(id Identity) (rpm, dailyCap, maxConcurrent int) {
	if id.IsAgent {
		return l.cfg.AgentRPM, l.cfg.AgentDailyCap, l.cfg.AgentMaxConcurrent
	}
	return l.cfg.IdentityRPM, l.cfg.IdentityDailyCap, l.cfg.IdentityMaxConcurrent
}

func (l *Limiter) checkRPM(ctx context.Context, key string, limit int) bool {
	total, err := l.store.Increment(ctx, rpmKey(key), 1, time.Minute)
	if err != nil {
		// Fail open: a store error never blocks verification, it just
		// means this window's count is approximate.
		return true
	}
	if total > limit {
		l.recordViolation(key)
		return false
	}
	return true
}

func (l *Limiter) recordViolation(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.viol[key]++
	l.violAt[key] = time.Now()
}

// violatorBackoff implements min(60s * 2^(violations-1), 3600s).
func (l *Limiter) violatorBackoff(key string) time.Duration {
	l.mu.Lock()
	n := l.viol[key]
	l.mu.Unlock()
	if n <= 0 {
		n = 1
	}
	backoff := 60 * time.Second
	for i := 1; i < n; i++ {
		backoff *= 2
		if backoff >= time.Hour {
			return time.Hour
		}
	}
	return backoff
}

// reserveDaily atomically reserves min(requested, remaining) out of
// cap for key's daily bucket, returning how many were actually
// reserved and false only when none could be reserved at all. The
// check-and-increment is one call into the store so two concurrent
// Admits near the cap can't both read the same stale remaining and
// jointly oversubscribe it.
func (l *Limiter) reserveDaily(ctx context.Context, key string, dailyCap int, requested int) (int, bool) {
	if requested <= 0 {
		return 0, true
	}
	grant, ok := l.store.TryReserve(ctx, key, dailyCap, requested, untilMidnightUTC())
	if !ok {
		return 0, false
	}
	return grant, true
}

func (l *Limiter) releaseDaily(ctx context.Context, key string, n int) {
	if n <= 0 {
		return
	}
	_, _ = l.store.Increment(ctx, key, -n, untilMidnightUTC())
}

func (l *Limiter) acquireConcurrency(key string, max int) (Release, bool) {
	l.mu.Lock()
	sem, ok := l.sems[key]
	if !ok {
		sem = make(chan struct{}, max)
		l.sems[key] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	default:
		return nil, false
	}
}

// ResetViolations clears a key's violator backoff counter. Nothing in
// the engine calls it: violation counts are not reset at the UTC daily
// boundary; Sweep drops a key's count once an hour has passed since its
// last violation.
func (l *Limiter) ResetViolations(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.viol, key)
	delete(l.violAt, key)
}

// Usage reports an identity's usage against its daily cap, for the
// agent-usage endpoint (spec.md §6).
func (l *Limiter) Usage(ctx context.Context, id Identity) (used, dailyCap, remaining int) {
	_, dailyCap, _ = l.thresholds(id)
	used, _ = l.store.Get(ctx, dailyKey(id.Key))
	remaining = dailyCap - used
	if remaining < 0 {
		remaining = 0
	}
	return used, dailyCap, remaining
}

func rpmKey(identityKey string) string   { return fmt.Sprintf("rl:rpm:%s", identityKey) }
func dailyKey(identityKey string) string { return fmt.Sprintf("rl:daily:%s:%s", identityKey, todayUTC()) }

func globalDailyKeyFor() string { return "rl:global:" + todayUTC() }

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}

func untilMidnightUTC() time.Duration {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}

func timeToMidnightUTC() time.Duration {
	return untilMidnightUTC()
}
