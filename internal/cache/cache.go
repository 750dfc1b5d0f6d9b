// Package cache is the key/value store behind aggregation reads. Values are
// opaque bytes so the same interface fits the in-process and Redis backends.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"budgetbox/internal/logger"
)

// Cache is a TTL key/value store.
type Cache interface {
	// Get returns the value and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Load returns the cached value for key, or runs fill once per key across
// concurrent callers and stores its JSON encoding for ttl. Cache failures
// are logged and fall through to fill.
func Load[T any](ctx context.Context, c Cache, group *singleflight.Group, key string, ttl time.Duration, fill func() (T, error)) (T, error) {
	var zero T

	if raw, ok, err := c.Get(ctx, key); err != nil {
		logger.Get().Warnw("cache get failed", "key", key, "error", err)
	} else if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		logger.Get().Warnw("cache entry undecodable, refilling", "key", key)
	}

	v, err, _ := group.Do(key, func() (interface{}, error) {
		value, err := fill()
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(value); err == nil {
			if err := c.Set(ctx, key, raw, ttl); err != nil {
				logger.Get().Warnw("cache set failed", "key", key, "error", err)
			}
		}
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
