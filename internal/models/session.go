package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated session scoped to a license. The persistent copy
// in the database is authoritative; the cache holds an accelerating snapshot
// whose TTL must never exceed the remaining persistent lifetime.
type Session struct {
	LicenseKey string    `json:"license_key"`
	Token      string    `json:"token"`
	UserID     uuid.UUID `json:"user_id"`
	Role       string    `json:"role"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Remaining returns the time left until the session expires.
// Returns zero for expired sessions.
func (s *Session) Remaining() time.Duration {
	d := time.Until(s.ExpiresAt)
	if d < 0 {
		return 0
	}
	return d
}

// User is the subject of a session.
type User struct {
	ID           uuid.UUID `json:"id"`
	LicenseKey   string    `json:"license_key"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSnapshot is the resolved (user, license) pair cached for a session.
type AuthSnapshot struct {
	User      User      `json:"user"`
	License   License   `json:"license"`
	ExpiresAt time.Time `json:"expires_at"`
}
