// Package main is the entrypoint for the Skillgate server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/api"
	"github.com/skillgate/skillgate/internal/apperr"
	"github.com/skillgate/skillgate/internal/auth"
	"github.com/skillgate/skillgate/internal/billing"
	"github.com/skillgate/skillgate/internal/cache"
	"github.com/skillgate/skillgate/internal/config"
	"github.com/skillgate/skillgate/internal/db"
	"github.com/skillgate/skillgate/internal/entitlement"
	"github.com/skillgate/skillgate/internal/maintenance"
	"github.com/skillgate/skillgate/internal/skills"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Skillgate server")

	// Load configuration
	cfg := config.LoadServerConfig()

	// Central error handler. Critical errors alert out of band; in production
	// a critical error ends the process after it is logged.
	errHandler := apperr.NewHandler(logger, func(e *apperr.Error) {
		logger.Error().
			Str("error_id", e.ID).
			Str("category", string(e.Category)).
			Str("severity", string(e.Severity)).
			Msg("critical error alert")
		if cfg.Environment == config.EnvProduction {
			logger.Fatal().Str("error_id", e.ID).Msg("critical error in production, exiting")
		}
	})

	// Panics outside the request path still go through the taxonomy before
	// the process dies.
	defer func() {
		if rec := recover(); rec != nil {
			errHandler.Handle(apperr.Wrap(apperr.CategorySystem, "panic in server process", fmt.Errorf("%v", rec)).
				WithSeverity(apperr.SeverityCritical))
			os.Exit(1)
		}
	}()

	// Connect to database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL environment variable is required")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(databaseURL), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Session cache is optional: without Redis every lookup hits the store.
	var sessionCache *cache.Cache
	if cfg.RedisAddr != "" {
		cacheCfg := cache.DefaultConfig(cfg.RedisAddr)
		cacheCfg.Password = cfg.RedisPassword
		cacheCfg.DB = cfg.RedisDB
		sessionCache, err = cache.New(ctx, cacheCfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Session cache unavailable, continuing without caching")
			sessionCache = nil
		} else {
			defer sessionCache.Close()
		}
	} else {
		logger.Info().Msg("REDIS_ADDR not set, session caching disabled")
	}

	// Token codec
	if cfg.TokenSecret == "" {
		logger.Fatal().Msg("TOKEN_SECRET environment variable is required")
		return 1
	}
	codec, err := auth.NewTokenCodec([]byte(cfg.TokenSecret))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize token codec")
		return 1
	}

	if cfg.WebhookSecret == "" {
		logger.Fatal().Msg("WEBHOOK_SECRET environment variable is required")
		return 1
	}

	// A nil *cache.Cache must stay a nil interface for the auth services.
	var sessionCacheIface auth.SessionCache
	var productCacheIface entitlement.ProductCache
	if sessionCache != nil {
		sessionCacheIface = sessionCache
		productCacheIface = sessionCache
	}

	validator := auth.NewValidator(codec, sessionCacheIface, database, logger)
	apiKeyValidator := auth.NewAPIKeyValidator(database, logger)
	lifecycle := auth.NewLifecycle(codec, sessionCacheIface, database,
		time.Duration(cfg.SessionMaxAge)*time.Second, logger)
	resolver := entitlement.NewResolver(productCacheIface, database, cfg.ProductCacheTTL, logger)

	// Pricing table, optionally overridden from a YAML file
	pricing := billing.DefaultPricingTable()
	if path := os.Getenv("PRICING_TABLE"); path != "" {
		pricing, err = billing.LoadPricingTable(path)
		if err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("Failed to load pricing table")
			return 1
		}
	}

	// Billing processor
	if cfg.StripeSecretKey == "" {
		logger.Fatal().Msg("STRIPE_SECRET_KEY environment variable is required")
		return 1
	}
	stripeCfg := billing.DefaultStripeConfig(cfg.StripeSecretKey)
	stripeCfg.Timeout = cfg.BillingTimeout
	processor := billing.NewStripeProcessor(stripeCfg, logger)
	enforcer := billing.NewEnforcer(pricing, processor, database, logger)

	// Skill runner; registrations are deployment-specific, the registry
	// acknowledges unknown actions.
	runner := skills.NewRegistry(logger)

	routerCfg := api.Config{
		Environment:         cfg.Environment,
		AllowedOrigins:      cfg.AllowedOrigins,
		IPWhitelist:         cfg.IPWhitelist,
		IPBlacklist:         cfg.IPBlacklist,
		WebhookSecret:       cfg.WebhookSecret,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		RateLimitRequests:   cfg.RateLimitRequests,
		RateLimitPeriod:     cfg.RateLimitPeriod,
		MaxBodyBytes:        1 << 20,
	}

	router, err := api.NewRouter(routerCfg, api.Deps{
		DB:              database,
		Cache:           sessionCache,
		Errors:          errHandler,
		Validator:       validator,
		APIKeyValidator: apiKeyValidator,
		Lifecycle:       lifecycle,
		Resolver:        resolver,
		Enforcer:        enforcer,
		Processor:       processor,
		Pricing:         pricing,
		Runner:          runner,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize router")
		return 1
	}

	// Start HTTP server
	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		listenAddr = ":" + port
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info().Str("addr", listenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start session cleanup scheduler
	janitor := maintenance.NewSessionJanitor(database, logger)
	if err := janitor.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start session janitor")
	}
	defer janitor.Stop()

	// Start monthly invoice scheduler
	invoices := billing.NewInvoiceScheduler(database, pricing.Currency, logger)
	if err := invoices.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start invoice scheduler")
	}
	defer invoices.Stop()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
