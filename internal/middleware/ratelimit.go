package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/craniometry-server/internal/domain"
)

// clientLimiters keeps one token bucket per caller. Keyed by user ID so
// one therapist hammering the API cannot starve the rest of the clinic.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func (cl *clientLimiters) get(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	limiter, ok := cl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(cl.rps, cl.burst)
		cl.limiters[key] = limiter
	}
	return limiter
}

// RateLimit enforces a per-client request rate. Falls back to the client
// IP when the request carries no identity.
func RateLimit(cfg domain.ServerConfig) gin.HandlerFunc {
	cl := &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(cfg.RateLimit),
		burst:    cfg.RateLimitBurst,
	}

	return func(c *gin.Context) {
		key := PrincipalFrom(c).UserID
		if key == "" {
			key = c.ClientIP()
		}

		if !cl.get(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":          "rate limit exceeded",
				"correlation_id": c.GetString("correlation_id"),
			})
			return
		}
		c.Next()
	}
}
