// Package emailaddr normalizes and syntax-checks the raw strings the engine
// receives before any DNS or network work happens. Nothing here talks to
// the network; it is pure string/encoding validation.
package emailaddr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/badoux/checkmail"
	"golang.org/x/net/idna"
)

// Address is a syntactically validated, normalized email address.
type Address struct {
	Raw    string // exactly what the caller sent, untrimmed
	Local  string // local part, lowercased
	Domain string // ASCII (IDNA) domain, lowercased
	Normal string // Local + "@" + Domain, the form every other package uses as a key
}

var profile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.Transitional(false),
)

// maxLen is the RFC 5321 §4.5.3.1.3 overall address length ceiling.
const maxLen = 254

// Parse strips a leading "mailto:" scheme if present, trims whitespace,
// splits at the last '@' (local parts may themselves contain '@' only when
// quoted, which this engine does not support — spec.md scopes out quoted
// local parts), validates RFC-5321-shaped syntax, and lowercases both the
// local part and the IDNA-normalized domain. It never performs a DNS
// lookup.
func Parse(raw string) (Address, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if len(s) > maxLen {
		return Address{}, fmt.Errorf("address exceeds %d characters", maxLen)
	}

	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return Address{}, fmt.Errorf("missing or misplaced '@'")
	}
	local, domain := s[:at], s[at+1:]

	if err := validateLocal(local); err != nil {
		return Address{}, err
	}
	local = strings.ToLower(local)

	asciiDomain, err := profile.ToASCII(domain)
	if err != nil {
		return Address{}, fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	asciiDomain = strings.ToLower(asciiDomain)
	if err := validateDomain(asciiDomain); err != nil {
		return Address{}, err
	}

	normal := local + "@" + asciiDomain
	if err := checkmail.ValidateFormat(normal); err != nil {
		return Address{}, fmt.Errorf("invalid address format: %w", err)
	}

	return Address{
		Raw:    raw,
		Local:  local,
		Domain: asciiDomain,
		Normal: normal,
	}, nil
}

// validateLocal enforces an unquoted dot-atom local part: letters, digits,
// and the printable specials RFC 5321 allows outside quotes, with no
// leading/trailing/doubled dots.
func validateLocal(local string) error {
	if local == "" {
		return fmt.Errorf("empty local part")
	}
	if len(local) > 64 {
		return fmt.Errorf("local part exceeds 64 characters")
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return fmt.Errorf("local part has leading, trailing, or doubled dot")
	}
	for _, r := range local {
		if !isAtomChar(r) {
			return fmt.Errorf("local part contains invalid character %q", r)
		}
	}
	return nil
}

func isAtomChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune(".!#$%&'*+-/=?^_`{|}~", r):
		return true
	}
	return false
}

// validateDomain enforces LDH (letter-digit-hyphen) labels separated by
// dots, each 1-63 characters, with at least one label boundary (a domain
// with no dot at all is never a deliverable mail domain).
func validateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("empty domain")
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return fmt.Errorf("domain %q has no top-level label", domain)
	}
	for _, label := range labels {
		if err := validateLabel(label); err != nil {
			return fmt.Errorf("domain %q: %w", domain, err)
		}
	}
	return nil
}

func validateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("empty label")
	}
	if len(label) > 63 {
		return fmt.Errorf("label %q exceeds 63 characters", label)
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("label %q starts or ends with a hyphen", label)
	}
	for _, r := range label {
		isLDH := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-'
		if !isLDH {
			return fmt.Errorf("label %q contains %q", label, r)
		}
	}
	return nil
}

// IsNumericTLD reports whether the final label is all-digit, a cheap signal
// some typo/garbage addresses exhibit (e.g. "user@example.123").
func (a Address) IsNumericTLD() bool {
	labels := strings.Split(a.Domain, ".")
	tld := labels[len(labels)-1]
	if _, err := strconv.Atoi(tld); err != nil {
		return false
	}
	return true
}
