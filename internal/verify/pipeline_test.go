package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/engine/internal/model"
	"github.com/veriflow/engine/internal/providers"
)

func TestParseOneValid(t *testing.T) {
	p := parseOne("John.Smith@Example.com")
	require.True(t, p.valid)
	assert.Equal(t, "example.com", p.addr.Domain)
	assert.Equal(t, "john.smith", p.addr.Local)
}

func TestParseOneInvalid(t *testing.T) {
	p := parseOne("not-an-email")
	assert.False(t, p.valid)
	assert.Equal(t, "not-an-email", p.raw)
}

func TestComputeBulkPatternFlagsSkipsInvalid(t *testing.T) {
	parsed := []parsedEmail{parseOne("john.smith@big.com"), parseOne("bad")}
	flags := computeBulkPatternFlags(parsed)
	require.Len(t, flags, 2)
	assert.Equal(t, "firstname.lastname", flags[0].MatchedPattern)
	assert.Equal(t, model.PatternFlags{}, flags[1])
}

func TestComputeBulkPatternFlagsFlagsDomainOutlier(t *testing.T) {
	parsed := []parsedEmail{
		parseOne("john.smith@big.com"),
		parseOne("jane.doe@big.com"),
		parseOne("bob.jones@big.com"),
		parseOne("xk28dqz91mpr@big.com"),
	}
	flags := computeBulkPatternFlags(parsed)
	require.Len(t, flags, 4)
	assert.False(t, flags[0].BulkAnomaly)
	assert.False(t, flags[1].BulkAnomaly)
	assert.False(t, flags[2].BulkAnomaly)
	assert.True(t, flags[3].BulkAnomaly)
}

func TestGateProvidersRunsMajorOnlyWhenHostedAndInconclusive(t *testing.T) {
	g := gateProviders(providers.HostingMicrosoft, model.SmtpNone, 5)
	assert.True(t, g.microsoft)
	assert.False(t, g.google)
	assert.False(t, g.apple)
	assert.True(t, g.secondary)
}

func TestGateProvidersSkipsMajorWhenUnhosted(t *testing.T) {
	g := gateProviders(providers.HostingUnknown, model.SmtpError, 5)
	assert.False(t, g.microsoft)
	assert.False(t, g.google)
	assert.False(t, g.apple)
	assert.True(t, g.secondary)
}

func TestGateProvidersVetoesOnRejectedForHostedDomain(t *testing.T) {
	g := gateProviders(providers.HostingGoogle, model.SmtpRejected, 5)
	assert.True(t, g.google)
	assert.False(t, g.secondary, "secondary probes never run on a clean rejection")
}

func TestGateProvidersSkipsEverythingOnAccepted(t *testing.T) {
	g := gateProviders(providers.HostingApple, model.SmtpAccepted, 5)
	assert.False(t, g.apple)
	assert.False(t, g.secondary)
}

func TestGateProvidersGitHubOnlyOnSingleAddressBatch(t *testing.T) {
	single := gateProviders(providers.HostingUnknown, model.SmtpNone, 1)
	assert.True(t, single.github)

	multi := gateProviders(providers.HostingUnknown, model.SmtpNone, 2)
	assert.False(t, multi.github)
}

func TestVerifyBatchPreservesOrderForInvalidAddresses(t *testing.T) {
	e := New(Config{}, nil, nil, nil, nil, nil, nil, nil)

	results := e.VerifyBatch(context.Background(), []string{"bad-one", "also bad", "still not valid"})
	require.Len(t, results, 3)
	for i, raw := range []string{"bad-one", "also bad", "still not valid"} {
		assert.Equal(t, raw, results[i].Email)
		assert.Equal(t, model.StatusInvalid, results[i].Status)
	}
}

func TestVerifyBatchEmptyInput(t *testing.T) {
	e := New(Config{}, nil, nil, nil, nil, nil, nil, nil)

	results := e.VerifyBatch(context.Background(), nil)
	assert.Empty(t, results)
}
