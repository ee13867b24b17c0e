package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillgate/skillgate/internal/models"
)

// GetAPIKey returns an API key record. Returns nil when no row exists.
func (db *DB) GetAPIKey(ctx context.Context, key string) (*models.APIKey, error) {
	var rec models.APIKey
	err := db.Pool.QueryRow(ctx, `
		SELECT key, license_key, status, expires_at, last_used_at, created_at
		FROM api_keys
		WHERE key = $1
	`, key).Scan(&rec.Key, &rec.LicenseKey, &rec.Status, &rec.ExpiresAt, &rec.LastUsedAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &rec, nil
}

// CreateAPIKey inserts an API key record.
func (db *DB) CreateAPIKey(ctx context.Context, rec *models.APIKey) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO api_keys (key, license_key, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.Key, rec.LicenseKey, string(rec.Status), rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// RevokeAPIKey marks an API key as revoked.
func (db *DB) RevokeAPIKey(ctx context.Context, key string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE api_keys SET status = 'revoked' WHERE key = $1
	`, key)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("revoke api key: key not found")
	}
	return nil
}

// TouchAPIKey records when a key was last used.
func (db *DB) TouchAPIKey(ctx context.Context, key string, usedAt time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE key = $1
	`, key, usedAt)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}
