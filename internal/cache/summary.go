package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const summaryKeyPrefix = "summary:"

// ErrCacheMiss is returned when a key is absent or unreadable.
var ErrCacheMiss = errors.New("cache miss")

// GetSummary decodes the cached summary stored under key into dst.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetSummary(ctx context.Context, key string, dst any) error {
	data, err := c.client.Get(ctx, c.key(summaryKeyPrefix+key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		// Corrupted cache entry - treat as miss
		return ErrCacheMiss
	}
	return nil
}

// SetSummary stores v under key for ttl.
func (c *Cache) SetSummary(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return c.client.Set(ctx, c.key(summaryKeyPrefix+key), data, ttl).Err()
}
