// Package middleware provides HTTP middleware for the Skillgate API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/auth"
	"github.com/skillgate/skillgate/internal/models"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey ContextKey = "user"
	// LicenseContextKey is the context key for the authenticated license.
	LicenseContextKey ContextKey = "license"
)

// AuthMiddleware returns a Gin middleware that requires a valid session token.
func AuthMiddleware(validator *auth.Validator, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		token := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			log.Debug().Str("path", c.Request.URL.Path).Msg("missing bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		result := validator.ValidateAuth(c.Request.Context(), token)
		if result.Err != nil {
			log.Error().Err(result.Err).Str("path", c.Request.URL.Path).Msg("auth validation failed")
			c.AbortWithStatusJSON(result.Err.HTTPStatus, gin.H{"error": result.Err.Message})
			return
		}
		if !result.Authenticated {
			log.Debug().Str("path", c.Request.URL.Path).Msg("unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set(string(UserContextKey), result.User)
		c.Set(string(LicenseContextKey), result.License)

		log.Debug().
			Str("user_id", result.User.ID.String()).
			Str("license_key", result.License.Key).
			Str("path", c.Request.URL.Path).
			Msg("authenticated request")

		c.Next()
	}
}

// GetUser retrieves the authenticated user from the Gin context.
// Returns nil if no user is authenticated.
func GetUser(c *gin.Context) *models.User {
	user, exists := c.Get(string(UserContextKey))
	if !exists {
		return nil
	}
	u, ok := user.(*models.User)
	if !ok {
		return nil
	}
	return u
}

// GetLicense retrieves the authenticated license from the Gin context.
// Returns nil if no license is present.
func GetLicense(c *gin.Context) *models.License {
	license, exists := c.Get(string(LicenseContextKey))
	if !exists {
		return nil
	}
	l, ok := license.(*models.License)
	if !ok {
		return nil
	}
	return l
}

// RequireUser is a helper that gets the authenticated user or aborts with 401.
// Use this in handlers that expect AuthMiddleware to have already run.
func RequireUser(c *gin.Context) *models.User {
	user := GetUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil
	}
	return user
}

// RequireLicense is a helper that gets the authenticated license or aborts with 401.
func RequireLicense(c *gin.Context) *models.License {
	license := GetLicense(c)
	if license == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil
	}
	return license
}
