// Package cache provides an optional Redis-backed read-through cache for
// completed job results, absent transparently when no Redis host is
// configured. Follows infrastructure/redis/client.go's connection
// setup, scaled down from a single-purpose log-buffer client to a
// small typed cache over domain.JSONBlob.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/integritystudio/alephauto/internal/config"
	"github.com/integritystudio/alephauto/internal/domain"
)

const connectionTimeout = 5 * time.Second

// Cache wraps a Redis client scoped to job-result caching. A nil *Cache
// (returned when Redis is not configured) is valid and acts as a no-op.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis per cfg. If cfg.Enabled() is false it returns
// (nil, nil): callers must treat a nil *Cache as "caching disabled",
// never as an error.
func New(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*Cache, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// Close releases the underlying connection. Safe to call on a nil Cache.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func resultKey(jobID string) string { return "alephauto:result:" + jobID }

// GetResult returns a job's cached result, or (nil, false) on a miss or
// when caching is disabled.
func (c *Cache) GetResult(ctx context.Context, jobID string) (domain.JSONBlob, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, resultKey(jobID)).Bytes()
	if err != nil {
		return nil, false
	}
	return domain.JSONBlob(raw), true
}

// SetResult caches a completed job's result. A no-op on a nil Cache.
func (c *Cache) SetResult(ctx context.Context, jobID string, result domain.JSONBlob) {
	if c == nil || result == nil {
		return
	}
	_ = c.client.Set(ctx, resultKey(jobID), []byte(result), c.ttl).Err()
}

// Invalidate drops a job's cached result.
func (c *Cache) Invalidate(ctx context.Context, jobID string) {
	if c == nil {
		return
	}
	_ = c.client.Del(ctx, resultKey(jobID)).Err()
}
