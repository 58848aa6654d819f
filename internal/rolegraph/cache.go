package rolegraph

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "rolegraph:perms:version"

// Cache is a short-TTL read-through cache for effective permission sets.
// Role-permission mutations affect an unknown set of users, so InvalidateAll
// bumps a version counter folded into every key instead of scanning keys.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache. TTL should stay small (seconds); the cache is
// an optimisation, not a consistency boundary.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

// GetPermissions returns the cached permission set for a user, if present.
func (c *Cache) GetPermissions(ctx context.Context, userID int64) ([]string, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false
	}
	return perms, true
}

// SetPermissions stores the permission set for a user. Best-effort.
func (c *Cache) SetPermissions(ctx context.Context, userID int64, perms []string) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, raw, c.ttl)
}

// InvalidateUser drops the cached set for a single user.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, key).Err()
}

// InvalidateAll invalidates every cached set by bumping the key version.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) key(ctx context.Context, userID int64) (string, error) {
	version, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return "rolegraph:perms:v" + strconv.FormatInt(version, 10) + ":" + strconv.FormatInt(userID, 10), nil
}
