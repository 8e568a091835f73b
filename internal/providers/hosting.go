package providers

import "strings"

// Hosting identifies which provider, if any, actually hosts a domain's
// mail, so the caller knows which single probe is authoritative instead
// of running all seven against every address.
type Hosting int

const (
	HostingUnknown Hosting = iota
	HostingMicrosoft
	HostingGoogle
	HostingApple
)

var staticHostedDomains = map[string]Hosting{
	"outlook.com":    HostingMicrosoft,
	"hotmail.com":    HostingMicrosoft,
	"live.com":       HostingMicrosoft,
	"msn.com":        HostingMicrosoft,
	"gmail.com":      HostingGoogle,
	"googlemail.com": HostingGoogle,
	"icloud.com":     HostingApple,
	"me.com":         HostingApple,
	"mac.com":        HostingApple,
}

var mxHostingPatterns = []struct {
	suffix  string
	hosting Hosting
}{
	{".mail.protection.outlook.com", HostingMicrosoft},
	{".outlook.com", HostingMicrosoft},
	{"aspmx.l.google.com", HostingGoogle},
	{".google.com", HostingGoogle},
	{".googlemail.com", HostingGoogle},
	{".mail.icloud.com", HostingApple},
}

// DetectHosting decides which provider fronts mail for domain, first by
// a static well-known-domain table and, failing that, by matching the
// first MX hostname against known provider MX suffixes.
func DetectHosting(domain string, firstMX string) Hosting {
	if h, ok := staticHostedDomains[strings.ToLower(domain)]; ok {
		return h
	}
	mx := strings.ToLower(strings.TrimSuffix(firstMX, "."))
	for _, p := range mxHostingPatterns {
		if strings.HasSuffix(mx, p.suffix) {
			return p.hosting
		}
	}
	return HostingUnknown
}
