package items

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "fulfillment:items:"

// Cache is a Redis read-through cache for master records. Concurrent misses
// for the same key share one load.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Invalidate drops the cached entries for the given keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = cacheKeyPrefix + k
	}
	return c.client.Del(ctx, full...).Err()
}

func cached[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	full := cacheKeyPrefix + key
	raw, err := c.client.Get(ctx, full).Bytes()
	if err == nil {
		var out T
		if jsonErr := json.Unmarshal(raw, &out); jsonErr == nil {
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return load(ctx)
	}

	v, err, _ := c.group.Do(full, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return val, err
		}
		if body, err := json.Marshal(val); err == nil {
			_ = c.client.Set(ctx, full, body, c.ttl).Err()
		}
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
