package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit budgets requests per client IP over a fixed window. period is a
// duration string such as "1m" or "1h". Counters live in process memory, so a
// multi-instance deployment limits per instance, not per fleet.
func RateLimit(requests int64, period string) (gin.HandlerFunc, error) {
	window, err := time.ParseDuration(period)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit period %q: %w", period, err)
	}

	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: window,
		Limit:  requests,
	})

	return mgin.NewMiddleware(instance, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	})), nil
}
