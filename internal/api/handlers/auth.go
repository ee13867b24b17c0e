// Package handlers implements the HTTP endpoints of the Skillgate API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/api/middleware"
	"github.com/skillgate/skillgate/internal/auth"
)

// AuthHandler handles session issue and revoke endpoints.
type AuthHandler struct {
	lifecycle *auth.Lifecycle
	logger    zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(lifecycle *auth.Lifecycle, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		lifecycle: lifecycle,
		logger:    logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterPublicRoutes registers routes that don't require authentication.
func (h *AuthHandler) RegisterPublicRoutes(r *gin.Engine) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.Logout)
	}
}

// RegisterRoutes registers routes behind session authentication.
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.Me)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	User      any    `json:"user"`
	License   any    `json:"license"`
}

// Login verifies credentials and issues a session token.
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	token, snapshot, err := h.lifecycle.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: snapshot.ExpiresAt.Unix(),
		User:      snapshot.User,
		License:   snapshot.License,
	})
}

// Logout revokes the presented session token. Always returns 204: revoking an
// invalid or already-revoked token is not an error worth distinguishing.
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := auth.ExtractBearerToken(c.GetHeader("Authorization"))
	if token != "" {
		if err := h.lifecycle.Logout(c.Request.Context(), token); err != nil {
			h.logger.Error().Err(err).Msg("logout failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// Me returns the authenticated user and license.
// GET /api/v1/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	license := middleware.RequireLicense(c)
	if license == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"license": license,
	})
}
