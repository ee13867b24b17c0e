package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/auth"
	"github.com/skillgate/skillgate/internal/models"
)

type stubAPIKeyStore struct {
	keys     map[string]*models.APIKey
	licenses map[string]*models.License
	err      error
}

func (s *stubAPIKeyStore) GetAPIKey(_ context.Context, key string) (*models.APIKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.keys[key], nil
}

func (s *stubAPIKeyStore) TouchAPIKey(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *stubAPIKeyStore) GetLicense(_ context.Context, key string) (*models.License, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.licenses[key], nil
}

func apiKeyRouter(store *stubAPIKeyStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := auth.NewAPIKeyValidator(store, zerolog.Nop())

	r := gin.New()
	r.Use(APIKeyMiddleware(validator, zerolog.Nop()))
	r.GET("/test", func(c *gin.Context) {
		license := GetLicense(c)
		apiKey := GetAPIKey(c)
		if license == nil || apiKey == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "context not set"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"license_key": license.Key})
	})
	return r
}

func seedStubKey(expiresAt *time.Time) *stubAPIKeyStore {
	return &stubAPIKeyStore{
		keys: map[string]*models.APIKey{
			auth.APIKeyPrefix + "valid": {
				Key:        auth.APIKeyPrefix + "valid",
				LicenseKey: "lic_machine",
				Status:     models.APIKeyStatusActive,
				ExpiresAt:  expiresAt,
			},
		},
		licenses: map[string]*models.License{
			"lic_machine": {
				Key:      "lic_machine",
				Status:   models.LicenseStatusActive,
				Plan:     models.PlanProfessional,
				Products: []string{"skills"},
			},
		},
	}
}

func TestAPIKeyMiddleware_ValidKey(t *testing.T) {
	r := apiKeyRouter(seedStubKey(nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(APIKeyHeader, auth.APIKeyPrefix+"valid")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "lic_machine") {
		t.Errorf("expected license key in response, got %s", w.Body.String())
	}
}

func TestAPIKeyMiddleware_MissingHeader(t *testing.T) {
	r := apiKeyRouter(seedStubKey(nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid API key") {
		t.Errorf("expected generic rejection body, got %s", w.Body.String())
	}
}

func TestAPIKeyMiddleware_UnknownKey(t *testing.T) {
	r := apiKeyRouter(seedStubKey(nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(APIKeyHeader, auth.APIKeyPrefix+"unknown")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid API key") {
		t.Errorf("expected generic rejection body, got %s", w.Body.String())
	}
}

func TestAPIKeyMiddleware_ExpiredKeyIndistinguishable(t *testing.T) {
	// An expired key row that is still marked active must get the same
	// response as an unknown key.
	expired := time.Now().Add(-time.Hour)
	r := apiKeyRouter(seedStubKey(&expired))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(APIKeyHeader, auth.APIKeyPrefix+"valid")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid API key") {
		t.Errorf("expected generic rejection body, got %s", w.Body.String())
	}
}

func TestAPIKeyMiddleware_StoreErrorIs500(t *testing.T) {
	store := seedStubKey(nil)
	store.err = errors.New("connection refused")
	r := apiKeyRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(APIKeyHeader, auth.APIKeyPrefix+"valid")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
