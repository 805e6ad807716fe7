package cache

import (
	"context"
	"testing"

	"github.com/integritystudio/alephauto/internal/config"
	"github.com/integritystudio/alephauto/internal/domain"
)

func TestNew_DisabledReturnsNilCacheNoError(t *testing.T) {
	c, err := New(t.Context(), config.RedisConfig{}, 0)
	if err != nil {
		t.Fatalf("expected no error when Redis is unconfigured, got %v", err)
	}
	if c != nil {
		t.Fatalf("expected a nil cache when disabled, got %+v", c)
	}
}

func TestNilCache_IsANoOp(t *testing.T) {
	var c *Cache

	if err := c.Close(); err != nil {
		t.Errorf("expected Close on a nil cache to be a no-op, got %v", err)
	}

	result, ok := c.GetResult(context.Background(), "job-1")
	if ok || result != nil {
		t.Errorf("expected a miss from a nil cache, got (%v, %v)", result, ok)
	}

	// Must not panic.
	c.SetResult(context.Background(), "job-1", domain.JSONBlob(`{"ok":true}`))
	c.Invalidate(context.Background(), "job-1")
}

func TestResultKey(t *testing.T) {
	if got := resultKey("job-1"); got != "alephauto:result:job-1" {
		t.Errorf("unexpected key: %s", got)
	}
}
