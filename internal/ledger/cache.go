package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceCache holds derived opening-balance values behind a short TTL.
// Every new posting bumps the org's version so stale keys stop resolving;
// staleness within the TTL window is an accepted trade-off.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache instantiates the cache helper.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &BalanceCache{client: client, ttl: ttl}
}

func orgVersionKey(orgID int64) string {
	return fmt.Sprintf("ledger:org:%d:version", orgID)
}

// Version returns the org's current cache version, initialising when missing.
func (c *BalanceCache) Version(ctx context.Context, orgID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, orgVersionKey(orgID)).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, orgVersionKey(orgID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes a cache key scoped to the org's current version.
func (c *BalanceCache) BuildKey(ctx context.Context, orgID int64, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, orgID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledger:org:%d:%s:%d", orgID, joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *BalanceCache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("ledger cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates all cached values for one organization.
func (c *BalanceCache) Bump(ctx context.Context, orgID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, orgVersionKey(orgID)).Err()
}
