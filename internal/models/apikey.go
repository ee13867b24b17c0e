package models

import (
	"time"
)

// APIKeyStatus represents the lifecycle state of an API key.
type APIKeyStatus string

const (
	// APIKeyStatusActive indicates the key may be used.
	APIKeyStatusActive APIKeyStatus = "active"
	// APIKeyStatusRevoked indicates the key has been revoked.
	APIKeyStatusRevoked APIKeyStatus = "revoked"
)

// APIKey authenticates machine-to-machine calls (workflow callbacks) and has a
// lifecycle independent from browser sessions.
type APIKey struct {
	Key        string       `json:"key"`
	LicenseKey string       `json:"license_key"`
	Status     APIKeyStatus `json:"status"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	LastUsedAt *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// IsUsable reports whether the key is active and not past its expiry.
// A key row that is still marked active but whose expires_at has passed is not usable.
func (k *APIKey) IsUsable(now time.Time) bool {
	if k.Status != APIKeyStatusActive {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}
