// Package cache provides the Redis access layer: rate limits, summary cache and the session deny list.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options tunes the Redis connection pool and key namespace.
type Options struct {
	PoolSize     int
	MinIdleConns int
	// KeyPrefix namespaces every key so several deployments can share one Redis.
	KeyPrefix string
}

// Cache wraps a Redis client with the application's key layout.
type Cache struct {
	client *redis.Client
	prefix string
}

// New connects to redisURL and verifies the connection with a PING.
func New(ctx context.Context, redisURL string, opts Options) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 10
	if opts.PoolSize > 0 {
		opt.PoolSize = opts.PoolSize
	}
	opt.MinIdleConns = 2
	if opts.MinIdleConns > 0 {
		opt.MinIdleConns = opts.MinIdleConns
	}
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client, prefix: opts.KeyPrefix}, nil
}

// NewWithClient wraps an existing client without a key prefix.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying client for the usage stream, which manages
// its own keys.
func (c *Cache) Client() *redis.Client {
	return c.client
}
