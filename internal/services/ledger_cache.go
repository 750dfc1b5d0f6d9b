package services

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"budgetbox/internal/cache"
	"budgetbox/internal/logger"
	"budgetbox/internal/models"
)

// LedgerCache memoizes per-user aggregation reads. A nil *LedgerCache is
// valid and always computes.
//
// Stored keys carry a per-user generation that InvalidateUser bumps before
// deleting, so a fill that started before a write can only store under the
// old generation, which no later read asks for.
type LedgerCache struct {
	store cache.Cache
	ttl   time.Duration
	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

// NewLedgerCache wraps store with the given entry lifetime.
func NewLedgerCache(store cache.Cache, ttl time.Duration) *LedgerCache {
	return &LedgerCache{store: store, ttl: ttl, generations: map[string]uint64{}}
}

func userPrefix(userID string) string {
	return "ledger:" + userID + ":"
}

// ledgerKey builds a cache key from query parameters. Pointers are keyed by
// the value they point at, never by address; nil pointers become "-".
func ledgerKey(userID, kind string, params ...any) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = keyPart(p)
	}
	return userPrefix(userID) + kind + ":" + strings.Join(parts, "|")
}

func keyPart(p any) string {
	switch v := p.(type) {
	case nil:
		return "-"
	case string:
		return v
	case models.TransactionType:
		return string(v)
	case time.Time:
		return v.Format(time.DateOnly)
	}

	rv := reflect.ValueOf(p)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "-"
		}
		return keyPart(rv.Elem().Interface())
	}
	return fmt.Sprint(p)
}

// cachedRead serves key from the ledger cache, computing it with fill on a miss.
func cachedRead[T any](ctx context.Context, c *LedgerCache, userID, key string, fill func() (T, error)) (T, error) {
	if c == nil {
		return fill()
	}
	return cache.Load(ctx, c.store, &c.group, c.versioned(userID, key), c.ttl, fill)
}

func (c *LedgerCache) versioned(userID, key string) string {
	c.mu.Lock()
	gen := c.generations[userID]
	c.mu.Unlock()
	return key + "#" + strconv.FormatUint(gen, 10)
}

// InvalidateUser drops every cached aggregate for userID. Failures are
// logged; entries still expire with their TTL.
func (c *LedgerCache) InvalidateUser(ctx context.Context, userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.generations[userID]++
	c.mu.Unlock()

	if err := c.store.DeletePrefix(ctx, userPrefix(userID)); err != nil {
		logger.Get().Warnw("ledger cache invalidation failed", "user_id", userID, "error", err)
	}
}
