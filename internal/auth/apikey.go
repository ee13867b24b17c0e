package auth

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/models"
)

const (
	// APIKeyPrefix is the prefix for all Skillgate API keys.
	APIKeyPrefix = "sg_"
)

// APIKeyStore defines the persistence operations for API key validation.
type APIKeyStore interface {
	GetAPIKey(ctx context.Context, key string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, key string, usedAt time.Time) error
	GetLicense(ctx context.Context, key string) (*models.License, error)
}

// APIKeyValidator validates API keys and resolves their owning license.
type APIKeyValidator struct {
	store  APIKeyStore
	logger zerolog.Logger
}

// NewAPIKeyValidator creates a new API key validator.
func NewAPIKeyValidator(store APIKeyStore, logger zerolog.Logger) *APIKeyValidator {
	return &APIKeyValidator{
		store:  store,
		logger: logger.With().Str("component", "apikey_validator").Logger(),
	}
}

// ValidateAPIKey validates an API key and returns the key record with its
// owning license. Returns (nil, nil, nil) when the key is invalid: missing,
// revoked, expired, or owned by a non-active license. A key row still marked
// active but past its expires_at is invalid.
func (v *APIKeyValidator) ValidateAPIKey(ctx context.Context, apiKey string) (*models.APIKey, *models.License, error) {
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		v.logger.Debug().Msg("invalid API key format")
		return nil, nil, nil
	}

	record, err := v.store.GetAPIKey(ctx, apiKey)
	if err != nil {
		return nil, nil, err
	}
	if record == nil || !record.IsUsable(time.Now()) {
		v.logger.Debug().Msg("API key not usable")
		return nil, nil, nil
	}

	license, err := v.store.GetLicense(ctx, record.LicenseKey)
	if err != nil {
		return nil, nil, err
	}
	if license == nil || !license.IsActive() {
		v.logger.Debug().Str("license_key", record.LicenseKey).Msg("API key license not active")
		return nil, nil, nil
	}

	// Last-used tracking is best-effort and never blocks the request.
	go func(key string) {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := v.store.TouchAPIKey(touchCtx, key, time.Now()); err != nil {
			v.logger.Warn().Err(err).Msg("failed to record API key last use")
		}
	}(apiKey)

	v.logger.Debug().Str("license_key", record.LicenseKey).Msg("API key validated")
	return record, license, nil
}
