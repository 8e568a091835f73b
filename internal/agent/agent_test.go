package agent

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret")
	verifier := NewVerifier("test-secret")

	token, err := issuer.Issue("agent-123", time.Hour)
	require.NoError(t, err)

	claims, err := verifier.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-123", claims.UID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("secret-a")
	verifier := NewVerifier("secret-b")

	token, err := issuer.Issue("agent-123", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-secret")
	verifier := NewVerifier("test-secret")

	token, err := issuer.Issue("agent-123", -time.Minute)
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	assert.Error(t, err)
}

func TestResolveUsesAgentTokenWhenValid(t *testing.T) {
	issuer := NewIssuer("test-secret")
	verifier := NewVerifier("test-secret")

	token, _ := issuer.Issue("agent-123", time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/api/verify", nil)
	req.Header.Set("X-Agent-Token", "Bearer "+token)

	id := verifier.Resolve(req)
	assert.True(t, id.IsAgent)
	assert.Equal(t, "agent-123", id.UID)
}

func TestResolveFallsBackToForwardedForIP(t *testing.T) {
	verifier := NewVerifier("test-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/verify", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	id := verifier.Resolve(req)
	assert.False(t, id.IsAgent)
	assert.Equal(t, "203.0.113.5", id.UID)
}

func TestResolveFallsBackToRealIPWhenNoForwardedFor(t *testing.T) {
	verifier := NewVerifier("test-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/verify", nil)
	req.Header.Set("X-Real-Ip", "198.51.100.9")

	id := verifier.Resolve(req)
	assert.False(t, id.IsAgent)
	assert.Equal(t, "198.51.100.9", id.UID)
}

func TestResolveFallsBackToUnknownWithoutAnyIdentity(t *testing.T) {
	verifier := NewVerifier("test-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/verify", nil)
	req.RemoteAddr = ""

	id := verifier.Resolve(req)
	assert.False(t, id.IsAgent)
	assert.Equal(t, "unknown", id.UID)
}
