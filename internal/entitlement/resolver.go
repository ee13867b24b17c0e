// Package entitlement resolves product access for licenses, cache first.
package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/apperr"
	"github.com/skillgate/skillgate/internal/cache"
	"github.com/skillgate/skillgate/internal/models"
)

// DefaultCacheTTL is the fixed TTL for cached entitlement decisions. It is
// independent of session lifetimes; entitlements change rarely.
const DefaultCacheTTL = time.Hour

// ProductCache caches entitlement decisions per (license, product).
type ProductCache interface {
	GetProductAccess(ctx context.Context, licenseKey, product string) (bool, error)
	PutProductAccess(ctx context.Context, licenseKey, product string, allowed bool, ttl time.Duration) error
}

// Store loads licenses from the source of truth.
type Store interface {
	GetLicense(ctx context.Context, key string) (*models.License, error)
}

// Resolver answers "is this license entitled to this product" with the same
// cache-first, store-fallback contract as session validation.
type Resolver struct {
	cache  ProductCache // nil when caching is disabled
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(productCache ProductCache, store Store, ttl time.Duration, logger zerolog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		cache:  productCache,
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "entitlement_resolver").Logger(),
	}
}

// ValidateProductAccess reports whether the license is active and entitled to
// the product. Cache writes are best-effort; a store failure is a
// DatabaseError and the request fails closed.
func (r *Resolver) ValidateProductAccess(ctx context.Context, licenseKey, product string) (bool, error) {
	if r.cache != nil {
		allowed, err := r.cache.GetProductAccess(ctx, licenseKey, product)
		if err == nil {
			return allowed, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			r.logger.Warn().Err(err).Msg("entitlement cache unavailable, falling back to store")
		}
	}

	license, err := r.store.GetLicense(ctx, licenseKey)
	if err != nil {
		return false, apperr.Wrap(apperr.CategoryDatabase, "license lookup failed", err)
	}

	allowed := license != nil && license.IsActive() && license.HasProduct(product)

	if r.cache != nil {
		if err := r.cache.PutProductAccess(ctx, licenseKey, product, allowed, r.ttl); err != nil {
			r.logger.Warn().Err(err).Msg("entitlement cache write failed")
		}
	}

	return allowed, nil
}
