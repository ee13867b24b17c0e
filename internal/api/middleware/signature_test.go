package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/crypto"
)

func signatureRouter(secret []byte, captured *[]byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook", VerifySignature(secret, zerolog.Nop()), func(c *gin.Context) {
		if captured != nil {
			*captured = RawBody(c)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestVerifySignature_ValidSignature(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"event":"order.completed","license_key":"lic_1"}`)

	var captured []byte
	r := signatureRouter(secret, &captured)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, crypto.SignPayload(body, secret))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(captured, body) {
		t.Errorf("handler saw %q, expected exact raw body", captured)
	}
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	r := signatureRouter([]byte("webhook-secret"), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{}")))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"event":"order.completed"}`)
	sig := crypto.SignPayload(body, secret)

	r := signatureRouter(secret, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{"event":"order.canceled"}`)))
	req.Header.Set(SignatureHeader, sig)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"event":"order.completed"}`)
	r := signatureRouter([]byte("server-secret"), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, crypto.SignPayload(body, []byte("sender-secret")))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestVerifySignature_EmptyBodyRejected(t *testing.T) {
	secret := []byte("webhook-secret")
	r := signatureRouter(secret, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(nil))
	req.Header.Set(SignatureHeader, crypto.SignPayload(nil, secret))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for empty body, got %d", w.Code)
	}
}

func TestRawBody_OutsideMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if RawBody(c) != nil {
		t.Error("expected nil raw body outside VerifySignature routes")
	}
}
