package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitRefusesOversizeBatch(t *testing.T) {
	l := New(Config{MaxBatchSize: 10}, nil)
	d, release := l.Admit(context.Background(), Identity{Key: "1.2.3.4"}, 11)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBatchTooLarge, d.Reason)
	assert.Nil(t, release)
}

func TestAdmitChecksRPMBeforeBatchSize(t *testing.T) {
	l := New(Config{MaxBatchSize: 10, IdentityRPM: 1, IdentityDailyCap: 100, GlobalDailyCap: 1000, IdentityMaxConcurrent: 5}, nil)
	ctx := context.Background()
	id := Identity{Key: "1.2.3.4"}

	d, release := l.Admit(ctx, id, 1)
	require.True(t, d.Allowed)
	release()

	// second call is both over the RPM limit and over the batch cap; RPM
	// must win per spec.md §4.1's gate ordering.
	d2, release2 := l.Admit(ctx, id, 11)
	assert.False(t, d2.Allowed)
	assert.Equal(t, ReasonRPMExceeded, d2.Reason)
	assert.Nil(t, release2)
}

func TestAdmitAllowsWithinAllLimits(t *testing.T) {
	l := New(Config{MaxBatchSize: 10, IdentityRPM: 5, IdentityDailyCap: 100, GlobalDailyCap: 1000, IdentityMaxConcurrent: 2}, nil)
	d, release := l.Admit(context.Background(), Identity{Key: "1.2.3.4"}, 3)
	require.True(t, d.Allowed)
	assert.Equal(t, 3, d.Reserved)
	require.NotNil(t, release)
	release()
}

func TestAdmitEnforcesRPM(t *testing.T) {
	l := New(Config{MaxBatchSize: 10, IdentityRPM: 2, IdentityDailyCap: 100, GlobalDailyCap: 1000, IdentityMaxConcurrent: 5}, nil)
	ctx := context.Background()
	id := Identity{Key: "1.2.3.4"}

	for i := 0; i < 2; i++ {
		d, release := l.Admit(ctx, id, 1)
		require.True(t, d.Allowed)
		release()
	}

	d, release := l.Admit(ctx, id, 1)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRPMExceeded, d.Reason)
	assert.Nil(t, release)
	assert.Equal(t, 60*time.Second, d.RetryAfter)
}

func TestAdmitPartiallyReservesNearDailyCap(t *testing.T) {
	l := New(Config{MaxBatchSize: 100, IdentityRPM: 100, IdentityDailyCap: 5, GlobalDailyCap: 1000, IdentityMaxConcurrent: 5}, nil)
	ctx := context.Background()
	id := Identity{Key: "1.2.3.4"}

	d, release := l.Admit(ctx, id, 3)
	require.True(t, d.Allowed)
	assert.Equal(t, 3, d.Reserved)
	release()

	d2, release2 := l.Admit(ctx, id, 5)
	require.True(t, d2.Allowed)
	assert.Equal(t, 2, d2.Reserved) // only 2 remain of the 5-cap
	release2()
}

func TestAdmitRefusesWhenDailyCapFullyUsed(t *testing.T) {
	l := New(Config{MaxBatchSize: 100, IdentityRPM: 100, IdentityDailyCap: 2, GlobalDailyCap: 1000, IdentityMaxConcurrent: 5}, nil)
	ctx := context.Background()
	id := Identity{Key: "1.2.3.4"}

	d, release := l.Admit(ctx, id, 2)
	require.True(t, d.Allowed)
	release()

	d2, release2 := l.Admit(ctx, id, 1)
	assert.False(t, d2.Allowed)
	assert.Equal(t, ReasonDailyCapReached, d2.Reason)
	assert.Nil(t, release2)
}

func TestAdmitRefusesOnGlobalCeiling(t *testing.T) {
	l := New(Config{MaxBatchSize: 100, IdentityRPM: 100, IdentityDailyCap: 100, GlobalDailyCap: 1, IdentityMaxConcurrent: 5}, nil)
	ctx := context.Background()

	d, release := l.Admit(ctx, Identity{Key: "a"}, 1)
	require.True(t, d.Allowed)
	release()

	d2, release2 := l.Admit(ctx, Identity{Key: "b"}, 1)
	assert.False(t, d2.Allowed)
	assert.Equal(t, ReasonGlobalCeiling, d2.Reason)
	assert.Nil(t, release2)
}

func TestAdmitRefusesOnConcurrencyLimit(t *testing.T) {
	l := New(Config{MaxBatchSize: 100, IdentityRPM: 100, IdentityDailyCap: 100, GlobalDailyCap: 1000, IdentityMaxConcurrent: 1}, nil)
	ctx := context.Background()
	id := Identity{Key: "1.2.3.4"}

	_, release1 := l.Admit(ctx, id, 1)
	require.NotNil(t, release1)

	d2, release2 := l.Admit(ctx, id, 1)
	assert.False(t, d2.Allowed)
	assert.Equal(t, ReasonConcurrency, d2.Reason)
	assert.Nil(t, release2)

	release1()

	d3, release3 := l.Admit(ctx, id, 1)
	assert.True(t, d3.Allowed)
	release3()
}

func TestAgentThresholdsUsedWhenIsAgent(t *testing.T) {
	l := New(Config{MaxBatchSize: 100, IdentityRPM: 1, AgentRPM: 50, IdentityDailyCap: 100, AgentDailyCap: 100, GlobalDailyCap: 1000, AgentMaxConcurrent: 5, IdentityMaxConcurrent: 5}, nil)
	ctx := context.Background()
	id := Identity{Key: "agent-1", IsAgent: true}

	for i := 0; i < 5; i++ {
		d, release := l.Admit(ctx, id, 1)
		require.True(t, d.Allowed)
		release()
	}
}

func TestUsageReportsRemaining(t *testing.T) {
	l := New(Config{MaxBatchSize: 100, IdentityRPM: 100, IdentityDailyCap: 10, GlobalDailyCap: 1000, IdentityMaxConcurrent: 5}, nil)
	ctx := context.Background()
	id := Identity{Key: "1.2.3.4"}

	d, release := l.Admit(ctx, id, 4)
	require.True(t, d.Allowed)
	release()

	used, dailyCap, remaining := l.Usage(ctx, id)
	assert.Equal(t, 4, used)
	assert.Equal(t, 10, dailyCap)
	assert.Equal(t, 6, remaining)
}

func TestAdmitNeverOversubscribesDailyCapUnderConcurrency(t *testing.T) {
	const dailyCap = 50
	l := New(Config{MaxBatchSize: 100, IdentityRPM: 1000, IdentityDailyCap: dailyCap, GlobalDailyCap: 1000, IdentityMaxConcurrent: 1000}, nil)
	ctx := context.Background()
	id := Identity{Key: "1.2.3.4"}

	const callers = 40
	var wg sync.WaitGroup
	var totalReserved int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, release := l.Admit(ctx, id, 3)
			if d.Allowed {
				atomic.AddInt64(&totalReserved, int64(d.Reserved))
				release()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(totalReserved), dailyCap)
	used, _, _ := l.Usage(ctx, id)
	assert.Equal(t, int(totalReserved), used)
}

func TestSweepEvictsExpiredStoreEntriesAndStaleViolators(t *testing.T) {
	l := New(Config{IdentityRPM: 1, IdentityDailyCap: 100, GlobalDailyCap: 1000, IdentityMaxConcurrent: 5}, nil)
	ctx := context.Background()
	id := Identity{Key: "1.2.3.4"}

	d, release := l.Admit(ctx, id, 1)
	require.True(t, d.Allowed)
	release()
	// second request in the same window trips the RPM gate and records a
	// violation
	d2, _ := l.Admit(ctx, id, 1)
	assert.False(t, d2.Allowed)

	l.mu.Lock()
	l.violAt[id.Key] = time.Now().Add(-2 * time.Hour)
	l.mu.Unlock()

	ms := l.store.(*memoryStore)
	ms.mu.Lock()
	for _, e := range ms.entries {
		e.expiresAt = time.Now().Add(-time.Minute)
	}
	ms.mu.Unlock()

	l.Sweep()

	l.mu.Lock()
	_, stillTracked := l.violAt[id.Key]
	l.mu.Unlock()
	assert.False(t, stillTracked)

	assert.Equal(t, 0, ms.Size())
}
