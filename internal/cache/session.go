package cache

import (
	"context"
	"fmt"
	"time"
)

const revokedSessionPrefix = "session:revoked:"

// RevokeSession puts a session token id on the deny list until ttl elapses.
func (c *Cache) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.key(revokedSessionPrefix+tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsSessionRevoked reports whether tokenID is on the deny list.
func (c *Cache) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(revokedSessionPrefix+tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return n > 0, nil
}
