package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpacerEnforcesMinimumInterval(t *testing.T) {
	s := newSpacer(30 * time.Millisecond)

	start := time.Now()
	s.wait()
	s.wait()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestSpacerFirstCallDoesNotBlock(t *testing.T) {
	s := newSpacer(500 * time.Millisecond)

	start := time.Now()
	s.wait()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 50*time.Millisecond)
}

func TestSpacerSerializesConcurrentCallers(t *testing.T) {
	s := newSpacer(10 * time.Millisecond)
	const n = 5

	done := make(chan time.Time, n)
	for i := 0; i < n; i++ {
		go func() {
			s.wait()
			done <- time.Now()
		}()
	}

	times := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		times = append(times, <-done)
	}

	// every caller got a slot at least interval apart from some other
	// caller; we can't assume arrival order, so just check the spread
	// between earliest and latest is at least (n-1)*interval.
	earliest, latest := times[0], times[0]
	for _, tm := range times {
		if tm.Before(earliest) {
			earliest = tm
		}
		if tm.After(latest) {
			latest = tm
		}
	}
	assert.GreaterOrEqual(t, latest.Sub(earliest), 4*10*time.Millisecond)
}
