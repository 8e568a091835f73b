// Package pattern analyzes an email local part for shape signals the
// fusion engine weighs: how "human" it looks, whether it matches a known
// business-naming convention, and — at batch scope — whether it's an
// outlier against the dominant convention used across its domain.
package pattern

import (
	"math"
	"regexp"
	"strings"

	"github.com/veriflow/engine/internal/model"
)

// businessPatterns is an ordered list of common corporate local-part
// conventions, checked in order; the first match wins.
var businessPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"firstname.lastname", regexp.MustCompile(`^[a-z]+\.[a-z]+$`)},
	{"firstinitial.lastname", regexp.MustCompile(`^[a-z]\.[a-z]+$`)},
	{"firstnamelastname", regexp.MustCompile(`^[a-z]+$`)},
	{"firstnameNNN", regexp.MustCompile(`^[a-z]+\d{1,4}$`)},
	{"firstname_lastname", regexp.MustCompile(`^[a-z]+_[a-z]+$`)},
	{"firstname-lastname", regexp.MustCompile(`^[a-z]+-[a-z]+$`)},
}

// Analyze computes the per-local-part flags spec.md §4.6 defines.
func Analyze(localPart string) model.PatternFlags {
	lower := strings.ToLower(localPart)
	entropy := shannonEntropy(lower)
	ratio := digitRatio(lower)
	length := len(lower)

	matched := matchBusinessPattern(lower)

	f := model.PatternFlags{
		Entropy:        entropy,
		DigitRatio:     ratio,
		MatchedPattern: matched,
	}
	f.LooksGenerated = entropy > 3.5 && length > 10
	f.UnusuallyShort = length <= 2
	f.MostlyNumeric = ratio > 0.5 && length > 5
	f.LooksHuman = matched != "" || (entropy < 3.5 && length >= 3 && length <= 30 && ratio < 0.4)

	return f
}

func matchBusinessPattern(localPart string) string {
	for _, p := range businessPatterns {
		if p.re.MatchString(localPart) {
			return p.name
		}
	}
	return ""
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	total := float64(len(s))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func digitRatio(s string) float64 {
	if s == "" {
		return 0
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}

// AnomalyInput is one address's local part and the domain it belongs to,
// for the bulk anomaly pass.
type AnomalyInput struct {
	LocalPart string
	Domain    string
}

// BulkAnomalies implements spec.md §4.6's bulk-anomaly detector: for any
// domain with ≥3 addresses in the batch, find its dominant matched
// pattern; if that pattern covers ≥50% of the domain's addresses and at
// least 3 of them, every address under that domain whose local part does
// not match the dominant pattern is flagged anomalous — including ones
// that match a different, non-dominant real pattern (spec.md §9's
// documented over-eager behavior, kept faithful rather than "fixed").
func BulkAnomalies(inputs []AnomalyInput, matched []string) []bool {
	anomalous := make([]bool, len(inputs))

	byDomain := make(map[string][]int)
	for i, in := range inputs {
		byDomain[in.Domain] = append(byDomain[in.Domain], i)
	}

	for _, idxs := range byDomain {
		if len(idxs) < 3 {
			continue
		}

		counts := make(map[string]int)
		for _, i := range idxs {
			if matched[i] != "" {
				counts[matched[i]]++
			}
		}

		dominant, dominantCount := "", 0
		for pattern, count := range counts {
			if count > dominantCount {
				dominant, dominantCount = pattern, count
			}
		}
		if dominant == "" || dominantCount < 3 {
			continue
		}
		if float64(dominantCount)/float64(len(idxs)) < 0.5 {
			continue
		}

		for _, i := range idxs {
			if matched[i] != dominant {
				anomalous[i] = true
			}
		}
	}

	return anomalous
}
