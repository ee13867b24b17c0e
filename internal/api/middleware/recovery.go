package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillgate/skillgate/internal/apperr"
)

// Recovery converts a handler panic into a critical taxonomy error and a 500
// response. The error handler logs it and decides whether it escalates
// further.
func Recovery(errs *apperr.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				appErr := apperr.Wrap(apperr.CategorySystem, "panic in request handler", fmt.Errorf("%v", rec)).
					WithSeverity(apperr.SeverityCritical).
					WithContext("method", c.Request.Method).
					WithContext("path", c.Request.URL.Path)
				errs.Handle(appErr)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
