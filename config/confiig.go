// Package config loads the engine's runtime configuration from the
// environment, the way the teacher's config package does (godotenv +
// getEnv/getEnvAsInt helpers), but scoped to the verification engine's
// own knobs (spec.md §6) instead of a database/OAuth/billing stack.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	AppConfig Config
	envLoaded bool
)

// Config holds every tunable named in spec.md §6. Durations are parsed
// from plain seconds in the environment to keep the var names obvious.
type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	MaxBatchSize int `json:"max_batch_size"`

	DNSCacheTTL    time.Duration `json:"dns_cache_ttl"`
	DNSTimeout     time.Duration `json:"dns_timeout"`
	DNSConcurrency int           `json:"dns_concurrency"`

	SMTPTimeout    time.Duration `json:"smtp_timeout"`
	SMTPHeloDomain string        `json:"smtp_helo_domain"`
	SMTPMailFrom   string        `json:"smtp_mail_from"`

	HIBPAPIKey string `json:"-"`

	PerIPRPM           int `json:"per_ip_rpm"`
	PerIPDailyCap      int `json:"per_ip_daily_cap"`
	PerIPMaxConcurrent int `json:"per_ip_max_concurrent"`

	GlobalDailyCap int `json:"global_daily_cap"`

	BounceReportRPM int `json:"bounce_report_rpm"`

	PerAgentRPM           int `json:"per_agent_rpm"`
	PerAgentDailyCap      int `json:"per_agent_daily_cap"`
	PerAgentMaxConcurrent int `json:"per_agent_max_concurrent"`

	AgentJWTSecret string `json:"-"`

	SentryDSN string `json:"-"`

	CORSAllowedOrigins   []string `json:"cors_allowed_origins"`
	CORSAllowCredentials bool     `json:"cors_allow_credentials"`
	CORSMaxAge           int      `json:"cors_max_age"`

	Redis RedisConfig `json:"redis"`
}

// RedisConfig backs the distributed rate-limit store; left disabled
// defaults to the in-process memory store (internal/ratelimit).
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func init() {
	_ = godotenv.Load()
	envLoaded = true
}

// LoadConfig populates AppConfig from the environment, falling back to
// spec-documented defaults for anything unset.
func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		MaxBatchSize: getEnvAsInt("MAX_BATCH_SIZE", 500),

		DNSCacheTTL:    getEnvAsDuration("DNS_CACHE_TTL_SECONDS", 10*time.Minute),
		DNSTimeout:     getEnvAsDuration("DNS_TIMEOUT_SECONDS", 5*time.Second),
		DNSConcurrency: getEnvAsInt("DNS_CONCURRENCY", 20),

		SMTPTimeout:    getEnvAsDuration("SMTP_TIMEOUT_SECONDS", 10*time.Second),
		SMTPHeloDomain: getEnv("SMTP_HELO_DOMAIN", "verify.local"),
		SMTPMailFrom:   getEnv("SMTP_MAIL_FROM", "probe@verify.local"),

		HIBPAPIKey: getEnv("HIBP_API_KEY", ""),

		PerIPRPM:           getEnvAsInt("PER_IP_RPM", 20),
		PerIPDailyCap:      getEnvAsInt("PER_IP_DAILY_CAP", 1000),
		PerIPMaxConcurrent: getEnvAsInt("PER_IP_MAX_CONCURRENT", 2),

		GlobalDailyCap: getEnvAsInt("GLOBAL_DAILY_CAP", 200000),

		BounceReportRPM: getEnvAsInt("BOUNCE_REPORT_RPM", 5),

		PerAgentRPM:           getEnvAsInt("PER_AGENT_RPM", 120),
		PerAgentDailyCap:      getEnvAsInt("PER_AGENT_DAILY_CAP", 50000),
		PerAgentMaxConcurrent: getEnvAsInt("PER_AGENT_MAX_CONCURRENT", 10),

		AgentJWTSecret: getEnv("AGENT_JWT_SECRET", ""),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		CORSAllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		CORSAllowCredentials: getEnv("CORS_ALLOW_CREDENTIALS", "true") == "true",
		CORSMaxAge:           getEnvAsInt("CORS_MAX_AGE", 3600),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	if AppConfig.Environment == "production" && AppConfig.AgentJWTSecret == "" {
		return fmt.Errorf("AGENT_JWT_SECRET is required in production")
	}

	logConfig()
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return fallback
	}
	return value
}

func getEnvAsSlice(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	seconds := getEnvAsInt(key, -1)
	if seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func logConfig() {
	log.Println("loaded configuration:")
	log.Printf("environment: %s", AppConfig.Environment)
	log.Printf("server port: %s", AppConfig.ServerPort)
	log.Printf("max batch size: %d, dns concurrency: %d", AppConfig.MaxBatchSize, AppConfig.DNSConcurrency)
	log.Printf("per-ip rpm: %d, per-agent rpm: %d, global daily cap: %d", AppConfig.PerIPRPM, AppConfig.PerAgentRPM, AppConfig.GlobalDailyCap)
}
