package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/auth"
	"github.com/skillgate/skillgate/internal/models"
)

const (
	// APIKeyHeader carries the machine credential for server-to-server calls.
	APIKeyHeader = "X-API-Key"

	// apiKeyContextKey is the context key for the authenticated API key record.
	apiKeyContextKey ContextKey = "api_key"
)

// APIKeyMiddleware returns a Gin middleware that authenticates requests using
// API keys. A revoked, expired, or unknown key gets the same response so
// callers cannot distinguish key states.
func APIKeyMiddleware(validator *auth.APIKeyValidator, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "apikey_middleware").Logger()

	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			log.Debug().Str("path", c.Request.URL.Path).Msg("missing API key header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		apiKey, license, err := validator.ValidateAPIKey(c.Request.Context(), key)
		if err != nil {
			log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("api key validation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if apiKey == nil {
			log.Debug().Str("path", c.Request.URL.Path).Msg("invalid API key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Set(string(apiKeyContextKey), apiKey)
		c.Set(string(LicenseContextKey), license)

		log.Debug().
			Str("license_key", license.Key).
			Str("path", c.Request.URL.Path).
			Msg("authenticated api key request")

		c.Next()
	}
}

// GetAPIKey retrieves the authenticated API key record from the Gin context.
// Returns nil outside APIKeyMiddleware-protected routes.
func GetAPIKey(c *gin.Context) *models.APIKey {
	key, exists := c.Get(string(apiKeyContextKey))
	if !exists {
		return nil
	}
	k, ok := key.(*models.APIKey)
	if !ok {
		return nil
	}
	return k
}
