// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetPublicRateLimitPerMinute() int
}

// SchedulerConfig provides settings for the asynq scheduler and workers.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSweepInterval() time.Duration
}

// RoutingConfig provides the tunable parameters of the routing engine.
type RoutingConfig interface {
	GetExclusiveWindow() time.Duration
	GetBroadcastWindow() time.Duration
	GetOpenWindow() time.Duration
	GetBroadcastFanout() int
	GetOpenFanout() int
	GetIgnoreSuspendThreshold() int
	GetIgnorePenaltyIncrement() float64
	GetPenaltyDecayRate() float64
	GetLastMinuteDays() int
	GetScoringWeights() ScoringWeights
}

// EmailConfig provides settings for the SMTP offer notification sender.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for building response links.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// ScoringWeights holds the weighted-sum coefficients of the scoring model.
type ScoringWeights struct {
	Reliability   float64
	Acceptance    float64
	Conversion    float64
	BudgetFit     float64
	ResponseSpeed float64
}

// DefaultScoringWeights returns the documented default weighting.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Reliability:   0.30,
		Acceptance:    0.20,
		Conversion:    0.20,
		BudgetFit:     0.15,
		ResponseSpeed: 0.15,
	}
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	CORSAllowAll             bool
	CORSOrigins              []string
	PublicRateLimitPerMinute int
	AppBaseURL               string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	SweepInterval    time.Duration

	ExclusiveWindow        time.Duration
	BroadcastWindow        time.Duration
	OpenWindow             time.Duration
	BroadcastFanout        int
	OpenFanout             int
	IgnoreSuspendThreshold int
	IgnorePenaltyIncrement float64
	PenaltyDecayRate       float64
	LastMinuteDays         int
	Weights                ScoringWeights

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
}

// Load reads configuration from the environment. A .env file is honored in
// development but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		CORSAllowAll:             getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:              getListEnv("CORS_ORIGINS"),
		PublicRateLimitPerMinute: getIntEnv("PUBLIC_RATE_LIMIT_PER_MINUTE", 30),
		AppBaseURL:               getEnv("APP_BASE_URL", "http://localhost:3000"),

		RedisURL:         os.Getenv("REDIS_URL"),
		RedisTLSInsecure: getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "routing"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),
		SweepInterval:    getDurationEnv("ROUTING_SWEEP_INTERVAL", 30*time.Second),

		ExclusiveWindow:        getDurationEnv("ROUTING_EXCLUSIVE_WINDOW", 30*time.Minute),
		BroadcastWindow:        getDurationEnv("ROUTING_BROADCAST_WINDOW", 4*time.Hour),
		OpenWindow:             getDurationEnv("ROUTING_OPEN_WINDOW", 48*time.Hour),
		BroadcastFanout:        getIntEnv("ROUTING_BROADCAST_FANOUT", 3),
		OpenFanout:             getIntEnv("ROUTING_OPEN_FANOUT", 10),
		IgnoreSuspendThreshold: getIntEnv("ROUTING_IGNORE_SUSPEND_THRESHOLD", 5),
		IgnorePenaltyIncrement: getFloatEnv("ROUTING_IGNORE_PENALTY_INCREMENT", 0.15),
		PenaltyDecayRate:       getFloatEnv("ROUTING_PENALTY_DECAY_RATE", 0.094),
		LastMinuteDays:         getIntEnv("ROUTING_LAST_MINUTE_DAYS", 7),
		Weights: ScoringWeights{
			Reliability:   getFloatEnv("SCORING_WEIGHT_RELIABILITY", 0.30),
			Acceptance:    getFloatEnv("SCORING_WEIGHT_ACCEPTANCE", 0.20),
			Conversion:    getFloatEnv("SCORING_WEIGHT_CONVERSION", 0.20),
			BudgetFit:     getFloatEnv("SCORING_WEIGHT_BUDGET_FIT", 0.15),
			ResponseSpeed: getFloatEnv("SCORING_WEIGHT_RESPONSE_SPEED", 0.15),
		},

		EmailEnabled:     getBoolEnv("EMAIL_ENABLED", false),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "GigRoute"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@gigroute.local"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string           { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string              { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool            { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string         { return c.CORSOrigins }
func (c *Config) GetPublicRateLimitPerMinute() int { return c.PublicRateLimitPerMinute }
func (c *Config) GetAppBaseURL() string            { return c.AppBaseURL }

func (c *Config) GetRedisURL() string              { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool        { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string        { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int         { return c.AsynqConcurrency }
func (c *Config) GetSweepInterval() time.Duration  { return c.SweepInterval }

func (c *Config) GetExclusiveWindow() time.Duration { return c.ExclusiveWindow }
func (c *Config) GetBroadcastWindow() time.Duration { return c.BroadcastWindow }
func (c *Config) GetOpenWindow() time.Duration      { return c.OpenWindow }
func (c *Config) GetBroadcastFanout() int           { return c.BroadcastFanout }
func (c *Config) GetOpenFanout() int                { return c.OpenFanout }
func (c *Config) GetIgnoreSuspendThreshold() int    { return c.IgnoreSuspendThreshold }
func (c *Config) GetIgnorePenaltyIncrement() float64 {
	return c.IgnorePenaltyIncrement
}
func (c *Config) GetPenaltyDecayRate() float64     { return c.PenaltyDecayRate }
func (c *Config) GetLastMinuteDays() int           { return c.LastMinuteDays }
func (c *Config) GetScoringWeights() ScoringWeights { return c.Weights }

func (c *Config) GetEmailEnabled() bool      { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string        { return c.SMTPHost }
func (c *Config) GetSMTPPort() int           { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string    { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string    { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string   { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// =============================================================================
// Env Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
