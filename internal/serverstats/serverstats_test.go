package serverstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veriflow/engine/internal/model"
)

func TestNotSuspectedBelowMinimumProbes(t *testing.T) {
	c := New()
	for i := 0; i < 9; i++ {
		c.Record("mx.example.com", model.SmtpAccepted)
	}
	assert.False(t, c.IsSuspectedCatchAll("mx.example.com"))
}

func TestSuspectedCatchAllAboveThreshold(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.Record("mx.example.com", model.SmtpAccepted)
	}
	assert.True(t, c.IsSuspectedCatchAll("mx.example.com"))
}

func TestNotSuspectedWhenRejectionsDominate(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Record("mx.example.com", model.SmtpAccepted)
	}
	for i := 0; i < 6; i++ {
		c.Record("mx.example.com", model.SmtpRejected)
	}
	assert.False(t, c.IsSuspectedCatchAll("mx.example.com"))
}

func TestUnknownHostIsNotSuspected(t *testing.T) {
	c := New()
	assert.False(t, c.IsSuspectedCatchAll("never-seen.example.com"))
}

func TestSweepEvictsIdleHostsOnly(t *testing.T) {
	c := New()
	c.Record("idle.example.com", model.SmtpAccepted)
	c.byMX["idle.example.com"].updatedAt = time.Now().Add(-8 * 24 * time.Hour)
	c.Record("active.example.com", model.SmtpAccepted)

	c.Sweep()

	assert.Equal(t, 1, c.Size())
	assert.False(t, c.IsSuspectedCatchAll("idle.example.com"))
}
