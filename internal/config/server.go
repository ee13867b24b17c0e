// Package config provides configuration management for Skillgate.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment Environment

	// SessionMaxAge is the session lifetime in seconds (default: 86400).
	SessionMaxAge int
	// ProductCacheTTL is the entitlement cache TTL (default: 1h).
	ProductCacheTTL time.Duration

	// RedisAddr is the address of the session cache. Empty disables caching;
	// the gateway degrades to persistent-store lookups.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// WebhookSecret signs inbound storefront webhook bodies.
	WebhookSecret string
	// TokenSecret signs session tokens.
	TokenSecret string

	// StripeSecretKey authenticates calls to the billing processor.
	StripeSecretKey string
	// StripeWebhookSecret verifies Stripe webhook signatures.
	StripeWebhookSecret string
	// BillingTimeout bounds external billing calls. A timed-out charge is
	// treated as failed and never retried automatically.
	BillingTimeout time.Duration

	// IPWhitelist and IPBlacklist gate request admission. Blacklist wins.
	IPWhitelist []string
	IPBlacklist []string

	AllowedOrigins    []string
	RateLimitRequests int64
	RateLimitPeriod   string
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	sessionMaxAge := getEnvInt("SESSION_MAX_AGE", 86400)
	if sessionMaxAge < 0 {
		sessionMaxAge = 86400
	}

	productCacheTTL := getEnvDuration("PRODUCT_CACHE_TTL", time.Hour)
	billingTimeout := getEnvDuration("BILLING_TIMEOUT", 15*time.Second)

	return ServerConfig{
		Environment:         env,
		SessionMaxAge:       sessionMaxAge,
		ProductCacheTTL:     productCacheTTL,
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		TokenSecret:         os.Getenv("TOKEN_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		BillingTimeout:      billingTimeout,
		IPWhitelist:         getEnvList("IP_WHITELIST"),
		IPBlacklist:         getEnvList("IP_BLACKLIST"),
		AllowedOrigins:      getEnvList("CORS_ORIGINS"),
		RateLimitRequests:   int64(getEnvInt("RATE_LIMIT_REQUESTS", 100)),
		RateLimitPeriod:     getEnvString("RATE_LIMIT_PERIOD", "1m"),
	}
}

// getEnvString reads a string from an environment variable, returning the default if unset.
func getEnvString(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a duration from an environment variable, returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// getEnvList reads a comma-separated list from an environment variable.
// Returns nil when unset or empty.
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
