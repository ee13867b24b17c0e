// Package cache provides the Redis-backed session and entitlement cache.
//
// The cache is a shared, best-effort accelerator over the persistent store.
// Misses and write failures are normal operation; the store remains the
// source of truth and callers must degrade to it when the cache is down.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/models"
)

// ErrMiss is returned when a key is absent or its cached entry is unusable.
var ErrMiss = errors.New("cache miss")

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with bounded timeouts.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

// Cache wraps a Redis client with session and entitlement helpers.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
}

// New creates a Cache connected to Redis. The connection is verified with a
// ping so startup fails loudly on misconfiguration rather than at first use.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	c := &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
	}
	c.logger.Info().Str("addr", cfg.Addr).Msg("session cache connected")
	return c, nil
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping verifies connectivity to Redis.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// sessionKey builds the cache key for a (license, token) pair. The raw token
// never appears in Redis; only its hash does.
func sessionKey(licenseKey, token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + licenseKey + ":" + hex.EncodeToString(sum[:])
}

// productKey builds the cache key for a (license, product) entitlement.
func productKey(licenseKey, product string) string {
	return "product:" + licenseKey + ":" + product
}

// GetSession returns the cached auth snapshot for a (license, token) pair.
// Returns ErrMiss for absent or structurally invalid entries; a corrupt entry
// is deleted so the next lookup repopulates it from the store.
func (c *Cache) GetSession(ctx context.Context, licenseKey, token string) (*models.AuthSnapshot, error) {
	key := sessionKey(licenseKey, token)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache get session: %w", err)
	}

	var snapshot models.AuthSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed cached session")
		c.client.Del(ctx, key)
		return nil, ErrMiss
	}
	return &snapshot, nil
}

// PutSession caches an auth snapshot with the given TTL. The TTL must not
// exceed the persistent session's remaining lifetime; callers compute it from
// the session expiry. Non-positive TTLs are not written.
func (c *Cache) PutSession(ctx context.Context, licenseKey, token string, snapshot *models.AuthSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	if err := c.client.Set(ctx, sessionKey(licenseKey, token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache put session: %w", err)
	}
	return nil
}

// DeleteSession removes a cached session (logout).
func (c *Cache) DeleteSession(ctx context.Context, licenseKey, token string) error {
	if err := c.client.Del(ctx, sessionKey(licenseKey, token)).Err(); err != nil {
		return fmt.Errorf("cache delete session: %w", err)
	}
	return nil
}

// GetProductAccess returns the cached entitlement decision for a product.
func (c *Cache) GetProductAccess(ctx context.Context, licenseKey, product string) (bool, error) {
	raw, err := c.client.Get(ctx, productKey(licenseKey, product)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, ErrMiss
		}
		return false, fmt.Errorf("cache get product access: %w", err)
	}
	return raw == "1", nil
}

// PutProductAccess caches an entitlement decision with a fixed TTL.
func (c *Cache) PutProductAccess(ctx context.Context, licenseKey, product string, allowed bool, ttl time.Duration) error {
	val := "0"
	if allowed {
		val = "1"
	}
	if err := c.client.Set(ctx, productKey(licenseKey, product), val, ttl).Err(); err != nil {
		return fmt.Errorf("cache put product access: %w", err)
	}
	return nil
}

// InvalidateLicense removes all cached entries for a license. Called when a
// webhook or admin action mutates entitlements.
func (c *Cache) InvalidateLicense(ctx context.Context, licenseKey string) error {
	for _, pattern := range []string{"session:" + licenseKey + ":*", "product:" + licenseKey + ":*"} {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			c.client.Del(ctx, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("cache invalidate license: %w", err)
		}
	}
	return nil
}
