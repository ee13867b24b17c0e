package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillgate/skillgate/internal/models"
)

// ErrInvalidCredentials indicates an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// LifecycleStore defines the persistence operations for session issue/revoke.
type LifecycleStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetLicense(ctx context.Context, key string) (*models.License, error)
	UpsertSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, licenseKey, token string) error
}

// Lifecycle issues and revokes sessions. Sessions are dual-homed: the
// persistent row is authoritative, the cache entry accelerates lookups and
// expires no later than the row.
type Lifecycle struct {
	codec  *TokenCodec
	cache  SessionCache // nil when caching is disabled
	store  LifecycleStore
	maxAge time.Duration
	logger zerolog.Logger
}

// NewLifecycle creates a session lifecycle service.
func NewLifecycle(codec *TokenCodec, sessionCache SessionCache, store LifecycleStore, maxAge time.Duration, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		codec:  codec,
		cache:  sessionCache,
		store:  store,
		maxAge: maxAge,
		logger: logger.With().Str("component", "session_lifecycle").Logger(),
	}
}

// Login verifies credentials and issues a signed session token. The license
// must be active. The persistent session row is written before the cache;
// a cache write failure does not fail the login.
func (l *Lifecycle) Login(ctx context.Context, email, password, ip, userAgent string) (string, *models.AuthSnapshot, error) {
	user, err := l.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		// Burn a comparison anyway so unknown emails take as long as bad passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalid"), []byte(password))
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	license, err := l.store.GetLicense(ctx, user.LicenseKey)
	if err != nil {
		return "", nil, err
	}
	if license == nil || !license.IsActive() {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	expiresAt := now.Add(l.maxAge)
	token, err := l.codec.Sign(TokenClaims{
		UserID:     user.ID,
		LicenseKey: user.LicenseKey,
		Role:       user.Role,
		IssuedAt:   now.Unix(),
		ExpiresAt:  expiresAt.Unix(),
	})
	if err != nil {
		return "", nil, err
	}

	session := &models.Session{
		LicenseKey: user.LicenseKey,
		Token:      token,
		UserID:     user.ID,
		Role:       user.Role,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := l.store.UpsertSession(ctx, session); err != nil {
		return "", nil, err
	}

	snapshot := &models.AuthSnapshot{
		User:      *user,
		License:   *license,
		ExpiresAt: expiresAt,
	}
	if l.cache != nil {
		if err := l.cache.PutSession(ctx, user.LicenseKey, token, snapshot, l.maxAge.Truncate(time.Second)); err != nil {
			l.logger.Warn().Err(err).Msg("session cache write failed on login")
		}
	}

	l.logger.Info().
		Str("user_id", user.ID.String()).
		Str("license_key", user.LicenseKey).
		Msg("session issued")
	return token, snapshot, nil
}

// Logout invalidates the session in both the cache and the persistent store.
// Structurally invalid tokens are a no-op; there is nothing to revoke.
func (l *Lifecycle) Logout(ctx context.Context, token string) error {
	claims, err := l.codec.Decode(token)
	if err != nil {
		return nil
	}

	if l.cache != nil {
		if err := l.cache.DeleteSession(ctx, claims.LicenseKey, token); err != nil {
			l.logger.Warn().Err(err).Msg("session cache delete failed on logout")
		}
	}
	if err := l.store.DeleteSession(ctx, claims.LicenseKey, token); err != nil {
		return err
	}

	l.logger.Info().Str("license_key", claims.LicenseKey).Msg("session revoked")
	return nil
}
