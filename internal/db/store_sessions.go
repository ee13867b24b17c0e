package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/skillgate/skillgate/internal/models"
)

// GetUserByID returns a user by ID. Returns nil when no row exists.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.Pool.QueryRow(ctx, `
		SELECT id, license_key, email, role, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.LicenseKey, &user.Email, &user.Role, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}

// GetUserByEmail returns a user by email. Returns nil when no row exists.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := db.Pool.QueryRow(ctx, `
		SELECT id, license_key, email, role, password_hash, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.LicenseKey, &user.Email, &user.Role, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user record.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (id, license_key, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.LicenseKey, user.Email, user.Role, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetSession returns the persistent session for a (license, token) pair.
// Returns nil when no row exists.
func (db *DB) GetSession(ctx context.Context, licenseKey, token string) (*models.Session, error) {
	var session models.Session
	err := db.Pool.QueryRow(ctx, `
		SELECT license_key, token, user_id, role, ip_address, user_agent, expires_at, created_at
		FROM sessions
		WHERE license_key = $1 AND token = $2
	`, licenseKey, token).Scan(
		&session.LicenseKey, &session.Token, &session.UserID, &session.Role,
		&session.IPAddress, &session.UserAgent, &session.ExpiresAt, &session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// UpsertSession writes the authoritative session record.
func (db *DB) UpsertSession(ctx context.Context, session *models.Session) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO sessions (license_key, token, user_id, role, ip_address, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (license_key, token)
		DO UPDATE SET expires_at = $7
	`, session.LicenseKey, session.Token, session.UserID, session.Role,
		session.IPAddress, session.UserAgent, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes the persistent session record (logout).
func (db *DB) DeleteSession(ctx context.Context, licenseKey, token string) error {
	_, err := db.Pool.Exec(ctx, `
		DELETE FROM sessions WHERE license_key = $1 AND token = $2
	`, licenseKey, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry. Run periodically;
// expiry itself is enforced at validation time, this is just hygiene.
func (db *DB) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
