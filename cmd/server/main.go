package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/veriflow/engine/config"
	controller "github.com/veriflow/engine/controllers"
	"github.com/veriflow/engine/internal/agent"
	"github.com/veriflow/engine/internal/bounce"
	"github.com/veriflow/engine/internal/dnsresolver"
	"github.com/veriflow/engine/internal/providers"
	"github.com/veriflow/engine/internal/ratelimit"
	"github.com/veriflow/engine/internal/serverstats"
	"github.com/veriflow/engine/internal/signals"
	"github.com/veriflow/engine/internal/smtpprobe"
	"github.com/veriflow/engine/internal/telemetry"
	"github.com/veriflow/engine/internal/verify"
	"github.com/veriflow/engine/middleware"
	"github.com/veriflow/engine/routes"
	"github.com/veriflow/engine/worker"
)

func main() {
	logger := log.New(os.Stdout, "ENGINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	if err := telemetry.Init(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Printf("sentry disabled: %v", err)
	}

	logrusLog := logrus.New()

	resolver := dnsresolver.New(dnsresolver.Config{
		Timeout:  cfg.DNSTimeout,
		CacheTTL: cfg.DNSCacheTTL,
	}, logrusLog)

	sigCollector := signals.New(signals.Config{}, resolver, logrusLog)

	stats := serverstats.New()

	prober := smtpprobe.New(smtpprobe.Config{
		HeloDomain: cfg.SMTPHeloDomain,
		MailFrom:   cfg.SMTPMailFrom,
		IOTimeout:  cfg.SMTPTimeout,
	}, stats, logrusLog)

	probes := providers.New(providers.Config{
		HIBPAPIKey: cfg.HIBPAPIKey,
	}, logrusLog)

	bounceStore := bounce.New()

	engine := verify.New(verify.Config{
		Concurrency: cfg.DNSConcurrency,
	}, resolver, sigCollector, prober, probes, stats, bounceStore, logrusLog)

	var rlStore ratelimit.Store
	if cfg.Redis.Enabled {
		rlStore = ratelimit.NewRedisStore(ratelimit.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	limiter := ratelimit.New(ratelimit.Config{
		MaxBatchSize:          cfg.MaxBatchSize,
		IdentityRPM:           cfg.PerIPRPM,
		IdentityDailyCap:      cfg.PerIPDailyCap,
		IdentityMaxConcurrent: cfg.PerIPMaxConcurrent,
		AgentRPM:              cfg.PerAgentRPM,
		AgentDailyCap:         cfg.PerAgentDailyCap,
		AgentMaxConcurrent:    cfg.PerAgentMaxConcurrent,
		GlobalDailyCap:        cfg.GlobalDailyCap,
	}, rlStore)

	verifier := agent.NewVerifier(cfg.AgentJWTSecret)

	verificationController := controller.NewVerificationController(engine, limiter, logger)
	bounceController := controller.NewBounceController(bounceStore, cfg.BounceReportRPM)
	progressController := controller.NewProgressController(engine, cfg.MaxBatchSize)

	app := fiber.New()
	app.Use(middleware.CORS(middleware.CORSConfigFromAppConfig(cfg)))

	routes.SetupRoutes(app, verifier, verificationController, bounceController, progressController)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := worker.NewSweepWorker(60*time.Second, logger, resolver, sigCollector, stats, bounceStore, limiter, bounceController.Limiter)
	go sweeper.Start(ctx)

	logger.Printf("server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}
}
