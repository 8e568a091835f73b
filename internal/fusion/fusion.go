// Package fusion combines every piece of evidence the engine gathered
// about one address — MX presence, the SMTP verdict, provider probes,
// domain intel, and pattern analysis — into a single Status and a
// confidence score in [0, 97], plus the notes that explain both.
package fusion

import (
	"github.com/veriflow/engine/internal/model"
)

// Input is everything the orchestrator collected for one address, ready
// for the status ladder and confidence table to run over.
type Input struct {
	Email       string
	Domain      string
	SyntaxValid bool

	MX   model.MxLookupResult
	Smtp *model.SmtpVerdict

	Providers model.ProviderChecks
	Intel     model.DomainIntel
	Pattern   model.PatternFlags

	IsDisposableDomain   bool
	IsRoleAccount        bool
	MajorProviderHosting bool // domain's mail is known to be Microsoft/Google/Apple-hosted
}

// Evaluate runs the status ladder and confidence table over in and
// returns the composite result. It never errors: every input, including
// a completely empty one, resolves to some status.
func Evaluate(in Input) model.VerifyResult {
	res := model.VerifyResult{
		Email:          in.Email,
		Domain:         in.Domain,
		ProviderChecks: in.Providers,
		DomainIntel:    in.Intel,
	}

	var notes []string
	var riskFlags []string

	if in.IsRoleAccount {
		riskFlags = append(riskFlags, "role-based")
	}
	if in.IsDisposableDomain {
		riskFlags = append(riskFlags, "disposable")
	}

	res.MX = mxTri(in.MX)
	smtpKind := smtpKindOf(in.Smtp)

	anyProviderTrue := in.Providers.Microsoft == model.True || in.Providers.Google == model.True || in.Providers.Apple == model.True
	anyProviderFalse := in.Providers.Microsoft == model.False || in.Providers.Google == model.False || in.Providers.Apple == model.False
	anySecondaryTrue := in.Providers.Gravatar == model.True || in.Providers.GitHub == model.True || in.Providers.PGP == model.True || in.Providers.HIBP == model.True

	status := statusLadder(in, smtpKind, anyProviderTrue, anyProviderFalse, anySecondaryTrue, len(riskFlags) > 0, &notes)

	score := confidenceScore(in, smtpKind, status, &notes)

	res.Status = status
	res.Confidence = score
	res.Notes = notes
	res.RiskFlags = riskFlags
	if in.Smtp != nil {
		res.Smtp = in.Smtp
	}
	return res
}

func mxTri(mx model.MxLookupResult) model.Tri {
	switch {
	case mx.Unknown:
		return model.Unknown
	case mx.HasMX:
		return model.True
	default:
		return model.False
	}
}

func smtpKindOf(v *model.SmtpVerdict) model.SmtpVerdictKind {
	if v == nil {
		return model.SmtpNone
	}
	return v.Kind
}

func statusLadder(
	in Input,
	smtpKind model.SmtpVerdictKind,
	anyProviderTrue, anyProviderFalse, anySecondaryTrue, hasRiskFlags bool,
	notes *[]string,
) model.Status {
	switch {
	case !in.SyntaxValid || in.Domain == "":
		*notes = append(*notes, "address failed syntax validation")
		return model.StatusInvalid

	case in.MX.Unknown:
		*notes = append(*notes, "mx lookup was inconclusive")
		return model.StatusUnknown

	case !in.MX.HasMX:
		*notes = append(*notes, "domain has no mail exchanger")
		return model.StatusInvalid

	case smtpKind == model.SmtpRejected && !anyProviderTrue:
		*notes = append(*notes, "mailbox was rejected by the mail server")
		return model.StatusInvalid

	case anyProviderFalse:
		*notes = append(*notes, "a major provider reports the account does not exist")
		return model.StatusInvalid

	case anyProviderTrue && !hasRiskFlags:
		*notes = append(*notes, "a major provider confirms the account exists")
		return model.StatusValid

	case smtpKind == model.SmtpCatchAll:
		*notes = append(*notes, "mail server accepts all recipients, cannot confirm this mailbox specifically")
		return model.StatusRisky

	case smtpKind == model.SmtpGreylisted:
		*notes = append(*notes, "mail server deferred the probe (greylisting)")
		return model.StatusRisky

	case hasRiskFlags:
		*notes = append(*notes, "address carries a risk flag")
		return model.StatusRisky

	case smtpKind == model.SmtpAccepted:
		*notes = append(*notes, "mailbox accepted the probe")
		return model.StatusValid

	case anySecondaryTrue:
		*notes = append(*notes, "a secondary provider confirms an account exists for this address")
		return model.StatusValid

	case in.MajorProviderHosting && (smtpKind == model.SmtpError || smtpKind == model.SmtpNone):
		*notes = append(*notes, "domain is hosted by a major provider and smtp was inconclusive")
		return model.StatusValid

	default:
		return model.StatusUnknown
	}
}

func confidenceScore(in Input, smtpKind model.SmtpVerdictKind, status model.Status, notes *[]string) int {
	if !in.SyntaxValid {
		return 0
	}

	score := baseline(in, smtpKind)

	if in.Providers.Microsoft == model.True {
		score = floorAt(score, 93, "microsoft account exists", notes)
	}
	if in.Providers.Google == model.True {
		score = floorAt(score, 94, "google account exists", notes)
	}
	if in.Providers.Apple == model.True {
		score = floorAt(score, 93, "apple account exists", notes)
	}
	if in.Providers.Microsoft == model.False || in.Providers.Google == model.False || in.Providers.Apple == model.False {
		score = ceilAt(score, 5, "major provider reports no account", notes)
	}
	if in.Providers.Gravatar == model.True {
		score = floorAt(score, 80, "gravatar profile exists", notes)
	}
	if in.Providers.GitHub == model.True {
		score = floorAt(score, 82, "github account exists", notes)
	}
	if in.Providers.PGP == model.True {
		score = floorAt(score, 78, "pgp key published", notes)
	}
	if in.Providers.HIBP == model.True {
		score = floorAt(score, 78, "address appears in known breaches", notes)
	}

	if in.MX.ViaImplicitMX && score > 50 {
		score -= 15
		*notes = append(*notes, "domain has no MX record, relying on implicit A/AAAA fallback")
	}

	switch {
	case in.Intel.SPFPresent == model.True && in.Intel.DMARCPresent == model.True:
		score += 3
		*notes = append(*notes, "domain publishes both SPF and DMARC")
	case in.Intel.SPFPresent != model.True && in.Intel.DMARCPresent != model.True:
		score -= 10
		*notes = append(*notes, "domain publishes neither SPF nor DMARC")
	}

	if in.Intel.WebsiteAlive == model.False {
		score -= 10
		*notes = append(*notes, "domain's website is not reachable")
	}
	if in.Intel.IsParked == model.True {
		score -= 15
		*notes = append(*notes, "domain appears to be parked")
	}
	if in.Intel.Blacklisted == model.True {
		score -= 20
		*notes = append(*notes, "mail server is listed on a DNS blacklist")
	}
	if in.Intel.DomainAgeDays != nil && *in.Intel.DomainAgeDays < 30 {
		score -= 15
		*notes = append(*notes, "domain was registered less than 30 days ago")
	}
	if !in.Pattern.LooksHuman {
		score -= 10
		*notes = append(*notes, "local part does not look like a human name")
	}
	if in.Pattern.LooksGenerated || in.Pattern.UnusuallyShort || in.Pattern.MostlyNumeric || in.Pattern.BulkAnomaly {
		score -= 5
		*notes = append(*notes, "local part matches an automated or anomalous naming pattern")
	}

	if in.IsDisposableDomain {
		if score > 25 {
			score = 25
		}
		*notes = append(*notes, "domain is a known disposable/temporary email provider")
	}
	if in.IsRoleAccount {
		score -= 10
		*notes = append(*notes, "local part looks like a role account, not a person")
	}

	score = clamp(score, 0, 97)

	// Every Invalid verdict except bad syntax (already returned above at
	// 0) is capped at 5: whatever the baseline/floors computed, an
	// address resolved as Invalid can never read as confidently verified.
	if status == model.StatusInvalid && score > 5 {
		score = 5
	}

	return score
}

func baseline(in Input, smtpKind model.SmtpVerdictKind) int {
	switch smtpKind {
	case model.SmtpAccepted:
		return 85
	case model.SmtpRejected:
		return 3
	case model.SmtpCatchAll:
		return 45
	case model.SmtpGreylisted:
		return 40
	default: // error or none
		if in.MajorProviderHosting {
			return 65
		}
		return 35
	}
}

func floorAt(score, floor int, note string, notes *[]string) int {
	if score < floor {
		score = floor
	}
	*notes = append(*notes, note)
	return score
}

func ceilAt(score, ceil int, note string, notes *[]string) int {
	if score > ceil {
		score = ceil
	}
	*notes = append(*notes, note)
	return score
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
