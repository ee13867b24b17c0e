package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/apperr"
)

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var alerted []*apperr.Error
	errs := apperr.NewHandler(zerolog.Nop(), func(e *apperr.Error) {
		alerted = append(alerted, e)
	})

	r := gin.New()
	r.Use(Recovery(errs))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal server error") {
		t.Errorf("body = %q, want generic error", w.Body.String())
	}
	if len(alerted) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerted))
	}
	if alerted[0].Severity != apperr.SeverityCritical {
		t.Errorf("severity = %s, want critical", alerted[0].Severity)
	}
	if alerted[0].Category != apperr.CategorySystem {
		t.Errorf("category = %s, want system", alerted[0].Category)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status after panic = %d, want 204", w.Code)
	}
	if len(alerted) != 1 {
		t.Errorf("alerts = %d after clean request, want 1", len(alerted))
	}
}
