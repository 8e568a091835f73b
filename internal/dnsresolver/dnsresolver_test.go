package dnsresolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veriflow/engine/internal/model"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.Retries)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.NotEmpty(t, cfg.Nameservers)
}

func TestCacheRoundTrip(t *testing.T) {
	r := New(Config{CacheTTL: time.Hour}, nil)

	_, ok := r.lookupCache("example.com")
	assert.False(t, ok)

	want := model.MxLookupResult{HasMX: true, Hosts: []string{"mx.example.com"}}
	r.storeCache("example.com", want)

	got, ok := r.lookupCache("example.com")
	assert.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, r.CacheSize())
}

func TestCacheExpiry(t *testing.T) {
	r := New(Config{CacheTTL: -time.Second}, nil)
	r.storeCache("expired.com", model.MxLookupResult{HasMX: true})

	_, ok := r.lookupCache("expired.com")
	assert.False(t, ok)
}

func TestSweepEvictsExpiredOnly(t *testing.T) {
	r := New(Config{}, nil)
	r.mu.Lock()
	r.cache["stale.com"] = cacheEntry{result: model.MxLookupResult{HasMX: true}, expiresAt: time.Now().Add(-time.Minute)}
	r.cache["fresh.com"] = cacheEntry{result: model.MxLookupResult{HasMX: true}, expiresAt: time.Now().Add(time.Hour)}
	r.mu.Unlock()

	r.Sweep()

	assert.Equal(t, 1, r.CacheSize())
	_, ok := r.lookupCache("fresh.com")
	assert.True(t, ok)
}

func TestEnsureFQDN(t *testing.T) {
	assert.Equal(t, "example.com.", ensureFQDN("example.com"))
	assert.Equal(t, "example.com.", ensureFQDN("example.com."))
}
