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
	GetCORSAllowCreds() bool
}

// InternalAPIConfig guards the operator endpoints (scoring, lead signals).
type InternalAPIConfig interface {
	GetInternalAPIKey() string
}

// SchedulerConfig provides settings for the asynq queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	IsSchedulerEnabled() bool
}

// WhatsAppConfig provides settings for the outbound WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// TwilioConfig provides settings for verifying inbound chat webhooks.
// An empty auth token disables signature checks.
type TwilioConfig interface {
	GetTwilioAuthToken() string
	GetPublicBaseURL() string
}

// MetaCAPIConfig provides settings for the Meta Conversions API.
type MetaCAPIConfig interface {
	GetMetaGraphURL() string
	GetMetaAPIVersion() string
}

// RateLimitConfig provides settings for the public endpoint limiter.
type RateLimitConfig interface {
	GetRateLimitPerMinute() int
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// FunnelConfig provides settings for session handling and scoring.
type FunnelConfig interface {
	GetSessionIdleTTL() time.Duration
	GetRescoreConcurrency() int
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	CORSAllowAll       bool
	CORSOrigins        []string
	CORSAllowCreds     bool
	InternalAPIKey     string
	RedisURL           string
	RedisTLSInsecure   bool
	AsynqQueueName     string
	AsynqConcurrency   int
	WhatsAppURL        string
	WhatsAppKey        string
	WhatsAppDeviceID   string
	TwilioAuthToken    string
	PublicBaseURL      string
	MetaGraphURL       string
	MetaAPIVersion     string
	RateLimitPerMinute int
	SessionIdleTTL     time.Duration
	RescoreConcurrency int
	PhoneDefaultRegion string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool   { return c.CORSAllowCreds }
func (c *Config) GetInternalAPIKey() string { return c.InternalAPIKey }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) IsSchedulerEnabled() bool  { return c.RedisURL != "" }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// TwilioConfig implementation
func (c *Config) GetTwilioAuthToken() string { return c.TwilioAuthToken }
func (c *Config) GetPublicBaseURL() string   { return c.PublicBaseURL }

// MetaCAPIConfig implementation
func (c *Config) GetMetaGraphURL() string   { return c.MetaGraphURL }
func (c *Config) GetMetaAPIVersion() string { return c.MetaAPIVersion }

// RateLimitConfig implementation
func (c *Config) GetRateLimitPerMinute() int { return c.RateLimitPerMinute }

// FunnelConfig implementation
func (c *Config) GetSessionIdleTTL() time.Duration { return c.SessionIdleTTL }
func (c *Config) GetRescoreConcurrency() int       { return c.RescoreConcurrency }
func (c *Config) GetPhoneDefaultRegion() string    { return c.PhoneDefaultRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		CORSAllowCreds:     strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		InternalAPIKey:     getEnv("INTERNAL_API_KEY", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:   mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		WhatsAppURL:        getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:        getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:   getEnv("WHATSAPP_DEVICE_ID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		MetaGraphURL:       getEnv("META_GRAPH_URL", "https://graph.facebook.com"),
		MetaAPIVersion:     getEnv("META_API_VERSION", "v19.0"),
		RateLimitPerMinute: mustInt(getEnv("RATE_LIMIT_PER_MINUTE", "20")),
		SessionIdleTTL:     mustDuration(getEnv("SESSION_IDLE_TTL", "72h")),
		RescoreConcurrency: mustInt(getEnv("RESCORE_CONCURRENCY", "8")),
		PhoneDefaultRegion: strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "US")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if cfg.RescoreConcurrency <= 0 {
		cfg.RescoreConcurrency = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("invalid duration: %s", value))
	}
	return parsed
}

func mustInt(value string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		panic(fmt.Sprintf("invalid integer: %s", value))
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

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
