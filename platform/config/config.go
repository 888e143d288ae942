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

// HTTPConfig provides settings for the HTTP server and router.
type HTTPConfig interface {
	GetEnv() string
	GetHTTPAddr() string
	GetCORSOrigins() []string
	GetCORSAllowAll() bool
}

// WebhookConfig provides settings for the lead ingestion webhook.
type WebhookConfig interface {
	GetWebhookVerifyToken() string
	GetAckAfterPersist() bool
	GetDefaultCallingCode() string
	GetResolverStrict() bool
}

// GraphConfig provides settings for the remote lead-detail API.
type GraphConfig interface {
	GetGraphEndpoint() string
	GetGraphAccessToken() string
	GetGraphAPIVersion() string
}

// SchedulerConfig provides settings for the asynq replay scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReplayDelay() time.Duration
}

// EmailConfig provides settings for review-inbox email notifications.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetReviewInboxAddress() string
}

// =============================================================================
// Config
// =============================================================================

// AckMode controls when the delivery endpoint acknowledges a webhook event.
const (
	// AckModeImmediate always returns 200 and swallows pipeline errors.
	AckModeImmediate = "immediate"
	// AckModeAfterPersist returns 500 when the lead event could not be
	// stored, so the provider redelivers instead of the event being lost.
	AckModeAfterPersist = "after-persist"
)

// Config holds all application configuration, loaded once at startup.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	CORSOrigins  []string
	CORSAllowAll bool

	WebhookVerifyToken string
	AckMode            string
	DefaultCallingCode string
	ResolverStrict     bool

	GraphEndpoint    string
	GraphAccessToken string
	GraphAPIVersion  string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	ReplayDelay      time.Duration

	EmailEnabled       bool
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	EmailFromName      string
	EmailFromAddress   string
	ReviewInboxAddress string
}

// Load reads configuration from the environment (and a .env file if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true")

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "")),
		CORSAllowAll: strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true"),

		WebhookVerifyToken: getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		AckMode:            getEnv("WEBHOOK_ACK_MODE", AckModeImmediate),
		DefaultCallingCode: getEnv("DEFAULT_CALLING_CODE", "+91"),
		ResolverStrict:     strings.EqualFold(getEnv("RESOLVER_STRICT", "false"), "true"),

		GraphEndpoint:    getEnv("GRAPH_ENDPOINT", "https://graph.facebook.com"),
		GraphAccessToken: getEnv("GRAPH_ACCESS_TOKEN", ""),
		GraphAPIVersion:  getEnv("GRAPH_API_VERSION", "v19.0"),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "ingestion"),
		AsynqConcurrency: getEnvInt("ASYNQ_CONCURRENCY", 10),
		ReplayDelay:      getEnvDuration("LEAD_REPLAY_DELAY", 2*time.Minute),

		EmailEnabled:       emailEnabled,
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvInt("SMTP_PORT", 587),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Recruitbase"),
		EmailFromAddress:   getEnv("EMAIL_FROM_ADDRESS", ""),
		ReviewInboxAddress: getEnv("REVIEW_INBOX_ADDRESS", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WebhookVerifyToken == "" {
		return nil, fmt.Errorf("WEBHOOK_VERIFY_TOKEN is required")
	}
	if cfg.AckMode != AckModeImmediate && cfg.AckMode != AckModeAfterPersist {
		return nil, fmt.Errorf("WEBHOOK_ACK_MODE must be %q or %q", AckModeImmediate, AckModeAfterPersist)
	}
	if !strings.HasPrefix(cfg.DefaultCallingCode, "+") {
		return nil, fmt.Errorf("DEFAULT_CALLING_CODE must start with '+'")
	}
	if cfg.EmailEnabled && (cfg.SMTPHost == "" || cfg.EmailFromAddress == "" || cfg.ReviewInboxAddress == "") {
		return nil, fmt.Errorf("SMTP_HOST, EMAIL_FROM_ADDRESS and REVIEW_INBOX_ADDRESS are required when EMAIL_ENABLED is true")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetEnv() string                  { return c.Env }
func (c *Config) GetHTTPAddr() string             { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string        { return c.CORSOrigins }
func (c *Config) GetCORSAllowAll() bool           { return c.CORSAllowAll }
func (c *Config) GetDatabaseURL() string          { return c.DatabaseURL }
func (c *Config) GetWebhookVerifyToken() string   { return c.WebhookVerifyToken }
func (c *Config) GetAckAfterPersist() bool        { return c.AckMode == AckModeAfterPersist }
func (c *Config) GetDefaultCallingCode() string   { return c.DefaultCallingCode }
func (c *Config) GetResolverStrict() bool         { return c.ResolverStrict }
func (c *Config) GetGraphEndpoint() string        { return c.GraphEndpoint }
func (c *Config) GetGraphAccessToken() string     { return c.GraphAccessToken }
func (c *Config) GetGraphAPIVersion() string      { return c.GraphAPIVersion }
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetReplayDelay() time.Duration   { return c.ReplayDelay }
func (c *Config) GetEmailEnabled() bool           { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string             { return c.SMTPHost }
func (c *Config) GetSMTPPort() int                { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string         { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string         { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string        { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string     { return c.EmailFromAddress }
func (c *Config) GetReviewInboxAddress() string   { return c.ReviewInboxAddress }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
