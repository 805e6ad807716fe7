// Package health implements liveness/readiness probes, following
// infrastructure/health's Checker shape: named checks run one after
// another under the caller's context, with readiness degrading to
// unhealthy if any check fails.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Status is the aggregate health verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check is a single named readiness probe.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to Check.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheck builds a Check from a name and function.
func NewCheck(name string, fn func(ctx context.Context) error) Check {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string                      { return c.name }
func (c *CheckFunc) Check(ctx context.Context) error    { return c.fn(ctx) }

// Checker runs every registered Check and reports the aggregate status.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewChecker returns an empty Checker.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Register adds or replaces a named check.
func (c *Checker) Register(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Name()] = check
}

// Check runs every registered check with a shared deadline and returns
// the aggregate status plus each check's individual result.
func (c *Checker) Check(ctx context.Context) (Status, map[string]string) {
	c.mu.RLock()
	checks := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	results := make(map[string]string, len(checks))
	healthy := true
	for _, check := range checks {
		if err := check.Check(ctx); err != nil {
			results[check.Name()] = fmt.Sprintf("error: %v", err)
			healthy = false
			continue
		}
		results[check.Name()] = "ok"
	}

	if !healthy {
		return StatusUnhealthy, results
	}
	return StatusHealthy, results
}

// GinHandler serves readiness: the aggregate of every registered check.
func (c *Checker) GinHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
		defer cancel()

		status, results := c.Check(checkCtx)

		statusCode := http.StatusOK
		if status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		ctx.JSON(statusCode, gin.H{
			"status":    status,
			"checks":    results,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LivenessHandler reports process liveness unconditionally: if the
// process can serve this request at all, it is alive by definition.
func LivenessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}

// RegisterRoutes mounts /health (readiness) and /health/live (liveness).
func RegisterRoutes(router gin.IRouter, checker *Checker) {
	router.GET("/health", checker.GinHandler())
	router.GET("/health/live", LivenessHandler())
}
