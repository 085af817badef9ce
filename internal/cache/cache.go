// Package cache wraps the two §6.4 fast-store key spaces: the user cache
// (cache-aside in front of the directory collaborator) and the
// processed-event idempotency marker the consumer uses to dedupe inbound
// events.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arc-self/order-lifecycle/internal/directory"
)

// Cache wraps a Redis client with the service's two key spaces.
type Cache struct {
	rdb               *redis.Client
	userCacheTTL      time.Duration
	processedEventTTL time.Duration
}

// New returns a Cache bound to rdb, with the §6.6 TTLs.
func New(rdb *redis.Client, userCacheTTL, processedEventTTL time.Duration) *Cache {
	return &Cache{rdb: rdb, userCacheTTL: userCacheTTL, processedEventTTL: processedEventTTL}
}

func userKey(userID string) string { return "user:" + userID }

// GetUser returns the cached directory.User for userID, or ok=false on a
// cache miss (including an unset/expired entry).
func (c *Cache) GetUser(ctx context.Context, userID string) (directory.User, bool, error) {
	raw, err := c.rdb.Get(ctx, userKey(userID)).Result()
	if err == redis.Nil {
		return directory.User{}, false, nil
	}
	if err != nil {
		return directory.User{}, false, fmt.Errorf("cache get user: %w", err)
	}

	var user directory.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return directory.User{}, false, fmt.Errorf("cache decode user: %w", err)
	}
	return user, true, nil
}

// SetUser writes user into the cache with the configured TTL (§6.4: 24h default).
func (c *Cache) SetUser(ctx context.Context, user directory.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("cache encode user: %w", err)
	}
	if err := c.rdb.Set(ctx, userKey(user.UserID), raw, c.userCacheTTL).Err(); err != nil {
		return fmt.Errorf("cache set user: %w", err)
	}
	return nil
}

// InvalidateUser removes a user cache entry — called on user.deleted so a
// subsequent order creation re-validates against the directory.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate user: %w", err)
	}
	return nil
}

func processedEventKey(eventID string) string { return "processed_event:" + eventID }

// MarkProcessed records eventID as processed and returns true if this call
// is the one that created the marker (false if it already existed) — the
// consumer's idempotency check (§6.4, §9).
func (c *Cache) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, processedEventKey(eventID), "1", c.processedEventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("cache mark processed: %w", err)
	}
	return ok, nil
}

// IsProcessed reports whether eventID already has a processed-event marker,
// without creating one.
func (c *Cache) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, processedEventKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("cache check processed: %w", err)
	}
	return n > 0, nil
}

// Ping checks connectivity for the readiness probe (§4.8).
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
