package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/crypto"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
	SignatureHeader = "X-Signature"

	// rawBodyContextKey holds the verified raw body for downstream handlers.
	rawBodyContextKey ContextKey = "raw_body"

	// maxWebhookBody bounds webhook payloads before the body is read.
	maxWebhookBody = 1 << 20
)

// VerifySignature returns a Gin middleware that authenticates webhook requests
// by HMAC over the raw body. The body is read and hashed exactly as received,
// before any JSON parsing; handlers must use RawBody rather than re-reading
// the request. A missing secret, header, or body always rejects.
func VerifySignature(secret []byte, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "signature_middleware").Logger()

	return func(c *gin.Context) {
		signature := c.GetHeader(SignatureHeader)
		if signature == "" {
			log.Debug().Str("path", c.Request.URL.Path).Msg("missing signature header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing signature"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("failed to read webhook body")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if len(body) == 0 || !crypto.VerifySignature(body, signature, secret) {
			log.Warn().
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Msg("webhook signature verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Set(string(rawBodyContextKey), body)
		c.Next()
	}
}

// RawBody retrieves the signature-verified request body from the Gin context.
// Returns nil outside VerifySignature-protected routes.
func RawBody(c *gin.Context) []byte {
	body, exists := c.Get(string(rawBodyContextKey))
	if !exists {
		return nil
	}
	b, ok := body.([]byte)
	if !ok {
		return nil
	}
	return b
}
