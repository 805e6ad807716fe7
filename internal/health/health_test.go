package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func TestChecker_HealthyWithNoChecks(t *testing.T) {
	c := NewChecker()
	status, results := c.Check(t.Context())
	if status != StatusHealthy {
		t.Errorf("expected healthy with zero checks, got %s", status)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %+v", results)
	}
}

func TestChecker_UnhealthyWhenAnyCheckFails(t *testing.T) {
	c := NewChecker()
	c.Register(NewCheck("ok", func(ctx context.Context) error { return nil }))
	c.Register(NewCheck("broken", func(ctx context.Context) error { return errors.New("unreachable") }))

	status, results := c.Check(t.Context())
	if status != StatusUnhealthy {
		t.Errorf("expected unhealthy when one check fails, got %s", status)
	}
	if results["ok"] != "ok" {
		t.Errorf("expected the passing check to report ok, got %q", results["ok"])
	}
	if results["broken"] == "ok" {
		t.Error("expected the failing check to report its error")
	}
}

func TestChecker_RegisterReplacesSameName(t *testing.T) {
	c := NewChecker()
	calls := 0
	c.Register(NewCheck("probe", func(ctx context.Context) error { calls++; return errors.New("first") }))
	c.Register(NewCheck("probe", func(ctx context.Context) error { calls++; return nil }))

	status, results := c.Check(t.Context())
	if status != StatusHealthy {
		t.Errorf("expected the second registration to replace the first, got %s", status)
	}
	if results["probe"] != "ok" {
		t.Errorf("expected probe ok, got %q", results["probe"])
	}
}

func TestChecker_GinHandlerReturns503WhenUnhealthy(t *testing.T) {
	c := NewChecker()
	c.Register(NewCheck("broken", func(ctx context.Context) error { return errors.New("down") }))

	router := gin.New()
	RegisterRoutes(router, c)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}

func TestChecker_GinHandlerReturns200WhenHealthy(t *testing.T) {
	c := NewChecker()
	router := gin.New()
	RegisterRoutes(router, c)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestLivenessHandler_AlwaysOK(t *testing.T) {
	router := gin.New()
	RegisterRoutes(router, NewChecker())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
