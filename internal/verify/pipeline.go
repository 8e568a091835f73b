package verify

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/veriflow/engine/internal/coalesce"
	"github.com/veriflow/engine/internal/emailaddr"
	"github.com/veriflow/engine/internal/fusion"
	"github.com/veriflow/engine/internal/model"
	"github.com/veriflow/engine/internal/pattern"
	"github.com/veriflow/engine/internal/providers"
	"github.com/veriflow/engine/internal/typofix"
)

// parsedEmail is one batch entry after syntax validation, kept alongside
// its raw string so an invalid address still gets a result row.
type parsedEmail struct {
	raw   string
	addr  emailaddr.Address
	valid bool
}

func parseOne(raw string) parsedEmail {
	addr, err := emailaddr.Parse(raw)
	return parsedEmail{raw: raw, addr: addr, valid: err == nil}
}

// computeBulkPatternFlags runs the per-local-part analyzer over every
// syntactically valid address, then layers the batch-wide anomaly pass
// on top. Invalid addresses get the zero-value flags.
func computeBulkPatternFlags(parsed []parsedEmail) []model.PatternFlags {
	flags := make([]model.PatternFlags, len(parsed))

	var inputs []pattern.AnomalyInput
	var matched []string
	var idx []int

	for i, p := range parsed {
		if !p.valid {
			continue
		}
		flags[i] = pattern.Analyze(p.addr.Local)
		inputs = append(inputs, pattern.AnomalyInput{LocalPart: p.addr.Local, Domain: p.addr.Domain})
		matched = append(matched, flags[i].MatchedPattern)
		idx = append(idx, i)
	}

	anomalous := pattern.BulkAnomalies(inputs, matched)
	for j, isAnomalous := range anomalous {
		if isAnomalous {
			flags[idx[j]].BulkAnomaly = true
		}
	}

	return flags
}

// verifyOne runs the full per-address evidence pipeline and fuses it.
// batchSize is the size of the whole request, used to gate the GitHub
// probe per spec.md §4.5.
func (e *Engine) verifyOne(ctx context.Context, p parsedEmail, pf model.PatternFlags, batchSize int) model.VerifyResult {
	if !p.valid {
		return fusion.Evaluate(fusion.Input{
			Email:       p.raw,
			SyntaxValid: false,
			Pattern:     pf,
		})
	}

	domain := p.addr.Domain
	local := p.addr.Local

	mx := e.lookupMX(ctx, domain)

	var firstMX string
	if len(mx.Hosts) > 0 {
		firstMX = mx.Hosts[0]
	}

	hosting := providers.DetectHosting(domain, firstMX)
	majorProviderHosting := hosting != providers.HostingUnknown

	var smtp *model.SmtpVerdict
	if mx.HasMX {
		v := e.prober.Probe(mx.Hosts, local, domain)
		smtp = &v
	}

	intel := e.lookupIntel(ctx, domain, firstMX)

	// A domain with no mail exchanger at all cannot own the mailbox a
	// provider probe would confirm; skip the network calls entirely
	// rather than let a positive secondary-provider hit contradict the
	// "no MX" verdict.
	var checks model.ProviderChecks
	if mx.HasMX {
		checks = e.runProviderChecks(p.addr.Normal, hosting, smtp, batchSize)
	}

	disposable := pattern.IsDisposableDomain(domain)
	role := pattern.IsRoleAccount(local)

	result := fusion.Evaluate(fusion.Input{
		Email:                p.addr.Normal,
		Domain:               domain,
		SyntaxValid:          true,
		MX:                   mx,
		Smtp:                 smtp,
		Providers:            checks,
		Intel:                intel,
		Pattern:              pf,
		IsDisposableDomain:   disposable,
		IsRoleAccount:        role,
		MajorProviderHosting: majorProviderHosting,
	})

	if suggested, note, ok := typofix.SuggestedEmail(local, domain); ok {
		result.SuggestedEmail = suggested
		result.Notes = append(result.Notes, note)
	}

	if e.bounces != nil && e.bounces.HasMultipleIndependentReports(p.raw) {
		result.Notes = append(result.Notes, "address has been reported as bouncing by multiple independent senders")
	}

	return result
}

// providerGate is the pure decision of which provider families to probe,
// split out from runProviderChecks so the gating rules can be tested
// without making a single network call.
type providerGate struct {
	microsoft, google, apple bool
	secondary                bool
	github                   bool
}

// gateProviders applies spec.md §4.5's gating: major-provider probes
// (Microsoft/Google/Apple) run when SMTP was inconclusive (error/none), or
// as a veto re-check when SMTP rejected the mailbox on a domain that is
// known to be hosted by that provider. Secondary probes run only when
// SMTP was inconclusive; GitHub additionally skips on multi-address
// batches (HIBP self-gates on a missing API key inside providers.Probes).
func gateProviders(hosting providers.Hosting, kind model.SmtpVerdictKind, batchSize int) providerGate {
	inconclusive := kind == model.SmtpError || kind == model.SmtpNone
	veto := kind == model.SmtpRejected

	var g providerGate
	if inconclusive || veto {
		switch hosting {
		case providers.HostingMicrosoft:
			g.microsoft = true
		case providers.HostingGoogle:
			g.google = true
		case providers.HostingApple:
			g.apple = true
		}
	}
	if inconclusive {
		g.secondary = true
		g.github = batchSize == 1
	}
	return g
}

func (e *Engine) runProviderChecks(email string, hosting providers.Hosting, smtp *model.SmtpVerdict, batchSize int) model.ProviderChecks {
	kind := model.SmtpNone
	if smtp != nil {
		kind = smtp.Kind
	}
	gate := gateProviders(hosting, kind, batchSize)

	// Every gated family is independent of the others (spec.md §4.10: MX
	// and SMTP are serialized, but the provider probes that follow run
	// in parallel), so a single email gated into both Google (3s spacer)
	// and GitHub (6.5s spacer) pays the slowest probe's wait, not the
	// sum of every gated probe's wait.
	var checks model.ProviderChecks
	var g errgroup.Group
	if gate.microsoft {
		g.Go(func() error { checks.Microsoft = e.providers.Microsoft(email); return nil })
	}
	if gate.google {
		g.Go(func() error { checks.Google = e.providers.Google(email); return nil })
	}
	if gate.apple {
		g.Go(func() error { checks.Apple = e.providers.Apple(email); return nil })
	}
	if gate.secondary {
		g.Go(func() error { checks.Gravatar = e.providers.Gravatar(email); return nil })
		g.Go(func() error { checks.PGP = e.providers.PGP(email); return nil })
		g.Go(func() error { checks.HIBP = e.providers.HIBP(email); return nil })
		if gate.github {
			g.Go(func() error { checks.GitHub = e.providers.GitHub(email); return nil })
		}
	}
	g.Wait()
	return checks
}

func (e *Engine) lookupMX(ctx context.Context, domain string) model.MxLookupResult {
	v, _, _ := e.coalesce.Do(coalesce.KindMX, domain, func() (any, error) {
		return e.resolver.LookupMX(ctx, domain), nil
	})
	return v.(model.MxLookupResult)
}

func (e *Engine) lookupIntel(ctx context.Context, domain, firstMX string) model.DomainIntel {
	v, _, _ := e.coalesce.Do(coalesce.KindIntel, domain, func() (any, error) {
		return e.signals.Collect(ctx, domain, firstMX), nil
	})
	return v.(model.DomainIntel)
}
