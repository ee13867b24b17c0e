// Package auth provides session token handling and request authentication.
package auth

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillgate/skillgate/internal/crypto"
)

var (
	// ErrTokenInvalid indicates a malformed or tampered token.
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrTokenExpired indicates a structurally valid but expired token.
	ErrTokenExpired = errors.New("session token expired")
)

// TokenClaims is the signed payload carried inside a session token.
type TokenClaims struct {
	UserID     uuid.UUID `json:"user_id"`
	LicenseKey string    `json:"license_key"`
	Role       string    `json:"role"`
	IssuedAt   int64     `json:"issued_at"`
	ExpiresAt  int64     `json:"expires_at"`
}

// Expiry returns the claim expiry as a time.
func (c *TokenClaims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// TokenCodec signs and verifies session tokens.
// Format: base64url(payload).base64url(HMAC-SHA256 signature).
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a TokenCodec. The secret must be at least 32 bytes.
func NewTokenCodec(secret []byte) (*TokenCodec, error) {
	if len(secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	return &TokenCodec{secret: secret}, nil
}

// Sign creates a signed token for the given claims.
func (tc *TokenCodec) Sign(claims TokenClaims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal token claims: %w", err)
	}
	sig := crypto.SignPayload(payload, tc.secret)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString([]byte(sig)), nil
}

// Decode verifies a token's signature and structural validity, then its expiry.
// It never touches a store; tampered and expired tokens fail fast here.
func (tc *TokenCodec) Decode(token string) (*TokenClaims, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrTokenInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrTokenInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenInvalid
	}

	expected := crypto.SignPayload(payload, tc.secret)
	if !hmac.Equal([]byte(expected), sig) {
		return nil, ErrTokenInvalid
	}

	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.UserID == uuid.Nil || claims.LicenseKey == "" {
		return nil, ErrTokenInvalid
	}
	if time.Now().After(claims.Expiry()) {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}

// ExtractBearerToken extracts the token from an Authorization header value.
// Returns empty string if the header is not a valid Bearer token.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
