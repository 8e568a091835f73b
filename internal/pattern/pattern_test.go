package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeFirstnameDotLastname(t *testing.T) {
	f := Analyze("john.smith")
	assert.Equal(t, "firstname.lastname", f.MatchedPattern)
	assert.True(t, f.LooksHuman)
	assert.False(t, f.UnusuallyShort)
}

func TestAnalyzeUnusuallyShort(t *testing.T) {
	f := Analyze("ab")
	assert.True(t, f.UnusuallyShort)
}

func TestAnalyzeMostlyNumeric(t *testing.T) {
	f := Analyze("12345user")
	assert.True(t, f.MostlyNumeric)
}

func TestAnalyzeLooksGenerated(t *testing.T) {
	f := Analyze("xk28dqz91mpr")
	assert.Greater(t, f.Entropy, 3.5)
	assert.True(t, f.LooksGenerated)
}

func TestShannonEntropyOfRepeatedChar(t *testing.T) {
	assert.Equal(t, 0.0, shannonEntropy("aaaaaa"))
	assert.Equal(t, 0.0, shannonEntropy(""))
}

func TestDigitRatio(t *testing.T) {
	assert.InDelta(t, 0.5, digitRatio("ab12"), 0.001)
	assert.Equal(t, 0.0, digitRatio("abcd"))
}

func TestIsDisposableDomain(t *testing.T) {
	assert.True(t, IsDisposableDomain("mailinator.com"))
	assert.False(t, IsDisposableDomain("example.com"))
}

func TestIsRoleAccount(t *testing.T) {
	assert.True(t, IsRoleAccount("admin"))
	assert.True(t, IsRoleAccount("no-reply"))
	assert.False(t, IsRoleAccount("jsmith"))
}

func TestBulkAnomaliesFlagsMinorityPattern(t *testing.T) {
	inputs := []AnomalyInput{
		{LocalPart: "john.smith", Domain: "bigcorp.com"},
		{LocalPart: "jane.doe", Domain: "bigcorp.com"},
		{LocalPart: "bob.lee", Domain: "bigcorp.com"},
		{LocalPart: "xkq192", Domain: "bigcorp.com"},
	}
	matched := make([]string, len(inputs))
	for i, in := range inputs {
		matched[i] = Analyze(in.LocalPart).MatchedPattern
	}

	anomalies := BulkAnomalies(inputs, matched)

	assert.False(t, anomalies[0])
	assert.False(t, anomalies[1])
	assert.False(t, anomalies[2])
	assert.True(t, anomalies[3])
}

func TestBulkAnomaliesSkipsSmallDomainGroups(t *testing.T) {
	inputs := []AnomalyInput{
		{LocalPart: "john.smith", Domain: "tiny.com"},
		{LocalPart: "xkq192", Domain: "tiny.com"},
	}
	matched := []string{"firstname.lastname", ""}

	anomalies := BulkAnomalies(inputs, matched)

	assert.False(t, anomalies[0])
	assert.False(t, anomalies[1])
}
