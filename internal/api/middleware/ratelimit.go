// Package middleware holds the gin middleware used by internal/api:
// request logging and per-source rate limiting on mutation endpoints.
// CORS is configured in internal/api's router, not here.
//
// Follows internal/api/middleware/security.go's map-of-client-state
// shape (a rate limiter cleaned up on a ticker), rebuilt on top of
// golang.org/x/time/rate's token bucket instead of a hand-rolled
// fixed-window counter (see DESIGN.md).
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/integritystudio/alephauto/internal/apperr"
)

// RateLimiter grants one token bucket per client source (remote IP),
// evicting idle buckets so long-running processes don't leak memory.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter granting rps requests per second with
// the given burst, per client source.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

func (rl *RateLimiter) allow(source string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[source]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[source] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// Cleanup evicts buckets idle longer than maxAge. Intended to be run
// periodically from a background goroutine.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for source, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > maxAge {
			delete(rl.clients, source)
		}
	}
}

// Middleware rejects requests over the configured rate with 429 and the
// standard JSON error envelope shape.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"kind":    string(apperr.KindRateLimited),
					"message": "rate limit exceeded",
				},
			})
			return
		}
		c.Next()
	}
}
