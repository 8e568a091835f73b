// Package verify is the batch orchestrator: it parses and normalizes a
// batch of raw email strings, fans out per-domain coalesced lookups,
// runs the bulk anomaly pass, probes SMTP and providers per address
// under a bounded concurrency limit, and fuses everything into the
// final []model.VerifyResult.
package verify

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/veriflow/engine/internal/bounce"
	"github.com/veriflow/engine/internal/coalesce"
	"github.com/veriflow/engine/internal/dnsresolver"
	"github.com/veriflow/engine/internal/model"
	"github.com/veriflow/engine/internal/providers"
	"github.com/veriflow/engine/internal/serverstats"
	"github.com/veriflow/engine/internal/signals"
	"github.com/veriflow/engine/internal/smtpprobe"
	"github.com/veriflow/engine/internal/telemetry"
)

// requestIDContextKey mirrors the string key the HTTP layer's RequestID
// middleware stashes on fiber's Locals, which fasthttp.RequestCtx also
// exposes through context.Value.
const requestIDContextKey = "requestID"

// Config bounds the orchestrator's work-in-flight across one request.
type Config struct {
	// Concurrency is the outer limit on DNS/SMTP/provider work-in-flight
	// across the whole batch (spec.md §4.10, default 20).
	Concurrency int
}

func (c *Config) setDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 20
	}
}

// Engine wires every evidence-producing collaborator together.
type Engine struct {
	cfg Config
	log *logrus.Entry

	resolver  *dnsresolver.Resolver
	signals   *signals.Collector
	prober    *smtpprobe.Prober
	providers *providers.Probes
	stats     *serverstats.Cache
	bounces   *bounce.Store
	coalesce  *coalesce.Groups
}

// New builds an Engine from its collaborators. bounces may be nil if
// the bounce-report feature is disabled.
func New(
	cfg Config,
	resolver *dnsresolver.Resolver,
	sig *signals.Collector,
	prober *smtpprobe.Prober,
	probes *providers.Probes,
	stats *serverstats.Cache,
	bounces *bounce.Store,
	log *logrus.Logger,
) *Engine {
	cfg.setDefaults()
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		cfg:       cfg,
		log:       log.WithField("component", "verify"),
		resolver:  resolver,
		signals:   sig,
		prober:    prober,
		providers: probes,
		stats:     stats,
		bounces:   bounces,
		coalesce:  coalesce.New(),
	}
}

// VerifyBatch is the engine's single entry point: one result per input
// string, in the same order, regardless of whether individual lookups
// failed (every non-fatal failure degrades to an `unknown` signal, per
// spec.md §7 — nothing here ever drops an address from the batch).
func (e *Engine) VerifyBatch(ctx context.Context, rawEmails []string) []model.VerifyResult {
	results := make([]model.VerifyResult, len(rawEmails))
	e.VerifyBatchStream(ctx, rawEmails, func(i int, r model.VerifyResult) {
		results[i] = r
	})
	return results
}

// VerifyBatchStream runs the same fan-out as VerifyBatch but invokes
// onResult as each address finishes instead of waiting for the whole
// batch, so a caller streaming results (the websocket progress endpoint)
// can forward them as they land. onResult is called from the worker
// goroutine that produced the result, never concurrently for the same i,
// but callers touching shared state must still synchronize themselves.
func (e *Engine) VerifyBatchStream(ctx context.Context, rawEmails []string, onResult func(i int, r model.VerifyResult)) {
	parsed := make([]parsedEmail, len(rawEmails))
	for i, raw := range rawEmails {
		parsed[i] = parseOne(raw)
	}

	patternFlags := computeBulkPatternFlags(parsed)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.cfg.Concurrency)

	for i := range parsed {
		i := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			onResult(i, e.verifyOne(gctx, parsed[i], patternFlags[i], len(rawEmails)))
			return nil
		})
	}
	_ = g.Wait() // verifyOne never returns an error; this never fails the batch

	telemetry.LogEvent(e.log.Logger, "batch_verified", map[string]interface{}{
		"requestID": ctx.Value(requestIDContextKey),
		"batchSize": len(rawEmails),
	})
}
