// Package typofix looks a domain up in a fixed misspelling-to-canonical
// map and, on a hit, proposes the corrected address. It never changes
// status or confidence (spec.md §4.8) — it only adds a note and a
// suggestion for the caller to act on.
package typofix

import "strings"

// canonical maps a known misspelling to the domain it almost certainly
// meant, grounded on the teacher's commonTypos map (utils/verifier.go)
// and extended to cover the provider families spec.md §4.8 names.
var canonical = map[string]string{
	"gmai.com":       "gmail.com",
	"gmial.com":      "gmail.com",
	"gmal.com":       "gmail.com",
	"gmail.co":       "gmail.com",
	"gmali.com":      "gmail.com",
	"gnail.com":      "gmail.com",
	"gamil.com":      "gmail.com",
	"yaho.com":       "yahoo.com",
	"yahooo.com":     "yahoo.com",
	"yahoo.co":       "yahoo.com",
	"hotmai.com":     "hotmail.com",
	"hotmial.com":    "hotmail.com",
	"hotmail.co":     "hotmail.com",
	"hotnail.com":    "hotmail.com",
	"outlok.com":     "outlook.com",
	"outlool.com":    "outlook.com",
	"outlook.co":     "outlook.com",
	"iclod.com":      "icloud.com",
	"iclould.com":    "icloud.com",
	"icloud.co":      "icloud.com",
	"aol.co":         "aol.com",
	"aoll.com":       "aol.com",
	"protonmai.com":  "protonmail.com",
	"protonmial.com": "protonmail.com",
	"live.co":        "live.com",
	"livr.com":       "live.com",
}

// Suggest returns the corrected domain and true if domain is a known
// misspelling, else "" and false.
func Suggest(domain string) (string, bool) {
	canon, ok := canonical[strings.ToLower(domain)]
	return canon, ok
}

// SuggestedEmail builds the "local@canonical" suggestion plus the
// user-facing note, when domain is a known misspelling.
func SuggestedEmail(localPart, domain string) (suggestedEmail, note string, ok bool) {
	canon, hit := Suggest(domain)
	if !hit {
		return "", "", false
	}
	return localPart + "@" + canon, "Did you mean " + canon + "?", true
}
