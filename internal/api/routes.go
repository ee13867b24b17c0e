// Package api provides the HTTP API for the Skillgate server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/api/handlers"
	"github.com/skillgate/skillgate/internal/api/middleware"
	"github.com/skillgate/skillgate/internal/apperr"
	"github.com/skillgate/skillgate/internal/auth"
	"github.com/skillgate/skillgate/internal/billing"
	"github.com/skillgate/skillgate/internal/cache"
	"github.com/skillgate/skillgate/internal/config"
	"github.com/skillgate/skillgate/internal/db"
	"github.com/skillgate/skillgate/internal/entitlement"
	"github.com/skillgate/skillgate/internal/skills"
)

// Config holds configuration for the API router.
type Config struct {
	// Environment gates CORS strictness and gin mode.
	Environment config.Environment
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// IPWhitelist and IPBlacklist gate requests before authentication.
	IPWhitelist []string
	IPBlacklist []string
	// WebhookSecret authenticates storefront webhook payloads.
	WebhookSecret string
	// StripeWebhookSecret verifies Stripe event signatures.
	StripeWebhookSecret string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
	// MaxBodyBytes limits request body size on API routes.
	MaxBodyBytes int64
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment:       config.EnvDevelopment,
		AllowedOrigins:    []string{},
		RateLimitRequests: 100,
		RateLimitPeriod:   "1m",
		MaxBodyBytes:      1 << 20,
	}
}

// Deps bundles the services the router mounts.
type Deps struct {
	DB              *db.DB
	Cache           *cache.Cache // nil when caching is disabled
	Errors          *apperr.Handler
	Validator       *auth.Validator
	APIKeyValidator *auth.APIKeyValidator
	Lifecycle       *auth.Lifecycle
	Resolver        *entitlement.Resolver
	Enforcer        *billing.Enforcer
	Processor       billing.Processor
	Pricing         *billing.PricingTable
	Runner          skills.Runner
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Deps, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// All error paths, panics included, funnel through one handler.
	errs := deps.Errors
	if errs == nil {
		errs = apperr.NewHandler(logger, nil)
	}

	// Global middleware
	r.Engine.Use(middleware.Recovery(errs))
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.SecurityHeaders())
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))

	if len(cfg.IPWhitelist) > 0 || len(cfg.IPBlacklist) > 0 {
		ipFilter, err := middleware.NewIPFilter(cfg.IPWhitelist, cfg.IPBlacklist, logger)
		if err != nil {
			return nil, err
		}
		r.Engine.Use(middleware.IPFilterMiddleware(ipFilter))
	}

	rateLimiter, err := middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)
	r.Engine.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	// Health check endpoints (no auth required)
	var cacheChecker handlers.CacheHealthChecker
	if deps.Cache != nil {
		cacheChecker = deps.Cache
	}
	healthHandler := handlers.NewHealthHandler(deps.DB, cacheChecker, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus metrics endpoint (no auth required)
	metricsHandler, err := handlers.NewMetricsHandler(logger)
	if err != nil {
		return nil, err
	}
	metricsHandler.RegisterPublicRoutes(r.Engine)

	// Auth routes (no auth required)
	authHandler := handlers.NewAuthHandler(deps.Lifecycle, logger)
	authHandler.RegisterPublicRoutes(r.Engine)

	// Webhook routes authenticate on the raw body, not on sessions.
	var licenseCache handlers.LicenseCache
	if deps.Cache != nil {
		licenseCache = deps.Cache
	}
	webhookHandler := handlers.NewWebhookHandler(deps.DB, licenseCache, cfg.StripeWebhookSecret, metricsHandler.Metrics(), logger)
	webhooks := r.Engine.Group("/webhooks")
	{
		webhooks.POST("/storefront",
			middleware.VerifySignature([]byte(cfg.WebhookSecret), logger),
			webhookHandler.Storefront)
		webhooks.POST("/stripe", webhookHandler.Stripe)
	}

	skillsHandler := handlers.NewSkillsHandler(deps.Resolver, deps.Enforcer, deps.Runner, errs, metricsHandler.Metrics(), logger)
	billingHandler := handlers.NewBillingHandler(deps.DB, deps.Processor, deps.Pricing, errs, logger)

	// API v1 routes (session auth required)
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.Validator, logger))

	authHandler.RegisterRoutes(apiV1)
	skillsHandler.RegisterRoutes(apiV1)
	billingHandler.RegisterRoutes(apiV1)

	// Machine routes (API key auth); same surface, different credential.
	machineV1 := r.Engine.Group("/machine/v1")
	machineV1.Use(middleware.APIKeyMiddleware(deps.APIKeyValidator, logger))

	skillsHandler.RegisterRoutes(machineV1)
	billingHandler.RegisterRoutes(machineV1)

	return r, nil
}
