package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/apperr"
	"github.com/skillgate/skillgate/internal/cache"
	"github.com/skillgate/skillgate/internal/models"
)

// SessionCache is the accelerating layer over the persistent session store.
// All methods are best-effort from the validator's perspective.
type SessionCache interface {
	GetSession(ctx context.Context, licenseKey, token string) (*models.AuthSnapshot, error)
	PutSession(ctx context.Context, licenseKey, token string, snapshot *models.AuthSnapshot, ttl time.Duration) error
	DeleteSession(ctx context.Context, licenseKey, token string) error
}

// Store is the authoritative persistence layer for auth lookups.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetLicense(ctx context.Context, key string) (*models.License, error)
	GetSession(ctx context.Context, licenseKey, token string) (*models.Session, error)
}

// AuthResult is the outcome of validating a bearer token. Authentication
// failures are results, not errors; Err is set only for infrastructure
// failures, which reject the request (fail closed).
type AuthResult struct {
	Authenticated bool
	User          *models.User
	License       *models.License
	Err           *apperr.Error
}

// Validator resolves bearer tokens to (user, license) snapshots, cache first.
type Validator struct {
	codec  *TokenCodec
	cache  SessionCache // nil when caching is disabled
	store  Store
	logger zerolog.Logger
}

// NewValidator creates a Validator. cache may be nil, in which case every
// lookup goes to the persistent store.
func NewValidator(codec *TokenCodec, sessionCache SessionCache, store Store, logger zerolog.Logger) *Validator {
	return &Validator{
		codec:  codec,
		cache:  sessionCache,
		store:  store,
		logger: logger.With().Str("component", "auth_validator").Logger(),
	}
}

// ValidateAuth validates a bearer token and resolves its entitlement snapshot.
//
// Token signature and expiry are checked before any store access. On a cache
// hit whose recorded expiry is still in the future the cached snapshot is
// returned as-is; a cold and a warm cache must yield the same result. On a
// miss the persistent store is consulted and the snapshot written back with a
// TTL equal to the remaining session lifetime in whole seconds.
func (v *Validator) ValidateAuth(ctx context.Context, token string) AuthResult {
	claims, err := v.codec.Decode(token)
	if err != nil {
		v.logger.Debug().Err(err).Msg("token rejected before store lookup")
		return AuthResult{}
	}

	if v.cache != nil {
		snapshot, err := v.cache.GetSession(ctx, claims.LicenseKey, token)
		if err == nil && snapshot != nil && time.Now().Before(snapshot.ExpiresAt) {
			user := snapshot.User
			license := snapshot.License
			return AuthResult{Authenticated: true, User: &user, License: &license}
		}
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			// Cache down is not fatal; degrade to the store.
			v.logger.Warn().Err(err).Msg("session cache unavailable, falling back to store")
		}
	}

	return v.validateFromStore(ctx, claims, token)
}

// validateFromStore resolves the session from the source of truth and
// repopulates the cache on success.
func (v *Validator) validateFromStore(ctx context.Context, claims *TokenClaims, token string) AuthResult {
	session, err := v.store.GetSession(ctx, claims.LicenseKey, token)
	if err != nil {
		return AuthResult{Err: apperr.Wrap(apperr.CategoryDatabase, "session lookup failed", err)}
	}
	if session == nil || session.IsExpired() {
		return AuthResult{}
	}

	license, err := v.store.GetLicense(ctx, claims.LicenseKey)
	if err != nil {
		return AuthResult{Err: apperr.Wrap(apperr.CategoryDatabase, "license lookup failed", err)}
	}
	if license == nil || !license.IsActive() {
		return AuthResult{}
	}

	user, err := v.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return AuthResult{Err: apperr.Wrap(apperr.CategoryDatabase, "user lookup failed", err)}
	}
	if user == nil {
		return AuthResult{}
	}

	snapshot := &models.AuthSnapshot{
		User:      *user,
		License:   *license,
		ExpiresAt: session.ExpiresAt,
	}

	if v.cache != nil {
		// TTL is floored to whole seconds so the cached entry can never
		// outlive the persistent session.
		ttl := session.Remaining().Truncate(time.Second)
		if err := v.cache.PutSession(ctx, claims.LicenseKey, token, snapshot, ttl); err != nil {
			v.logger.Warn().Err(err).Msg("session cache write failed")
		}
	}

	return AuthResult{Authenticated: true, User: user, License: license}
}
