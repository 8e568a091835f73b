package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veriflow/engine/internal/model"
)

func TestReverseIPv4(t *testing.T) {
	assert.Equal(t, "1.0.168.192", reverseIPv4("192.168.0.1"))
	assert.Equal(t, "", reverseIPv4("not-an-ip"))
	assert.Equal(t, "", reverseIPv4("::1"))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.DKIMCacheTTL)
}

func TestIntelCacheRoundTrip(t *testing.T) {
	c := &Collector{
		cfg:       Config{CacheTTL: time.Hour},
		intel:     make(map[string]intelEntry),
		dkimCache: make(map[string]dkimEntry),
	}

	_, ok := c.lookupIntel("example.com")
	assert.False(t, ok)

	want := model.DomainIntel{SPFPresent: model.True}
	c.storeIntel("example.com", want)

	got, ok := c.lookupIntel("example.com")
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestDKIMCacheExpiry(t *testing.T) {
	c := &Collector{
		cfg:       Config{DKIMCacheTTL: -time.Second},
		intel:     make(map[string]intelEntry),
		dkimCache: make(map[string]dkimEntry),
	}
	c.storeDKIM("example.com", []string{"google"})

	_, ok := c.lookupDKIM("example.com")
	assert.False(t, ok)
}

func TestSweepRemovesExpiredEntriesOnly(t *testing.T) {
	c := &Collector{
		intel:     make(map[string]intelEntry),
		dkimCache: make(map[string]dkimEntry),
	}
	c.intel["stale.com"] = intelEntry{expiresAt: time.Now().Add(-time.Minute)}
	c.intel["fresh.com"] = intelEntry{expiresAt: time.Now().Add(time.Hour)}

	c.Sweep()

	_, staleOK := c.lookupIntel("stale.com")
	_, freshOK := c.lookupIntel("fresh.com")
	assert.False(t, staleOK)
	assert.True(t, freshOK)
}
