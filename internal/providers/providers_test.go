package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veriflow/engine/internal/model"
)

func TestNewAppliesDefaultTimeout(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, 6e9, float64(p.cfg.Timeout))
}

func TestNewWiresOneSpacerPerProvider(t *testing.T) {
	p := New(Config{}, nil)
	assert.NotNil(t, p.microsoft)
	assert.NotNil(t, p.google)
	assert.NotNil(t, p.apple)
	assert.NotNil(t, p.gravatar)
	assert.NotNil(t, p.github)
	assert.NotNil(t, p.pgp)
	assert.NotNil(t, p.hibp)
}

func TestHIBPSkippedWithoutAPIKey(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, model.Unknown, p.HIBP("user@example.com"))
}

func TestIsConsumerGoogleDomain(t *testing.T) {
	assert.True(t, isConsumerGoogleDomain("user@gmail.com"))
	assert.True(t, isConsumerGoogleDomain("user@googlemail.com"))
	assert.False(t, isConsumerGoogleDomain("user@corp.example"))
	assert.False(t, isConsumerGoogleDomain("not-an-email"))
}
