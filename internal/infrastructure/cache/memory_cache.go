package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"reliability/internal/errs"
	"reliability/internal/ports"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Observer receives cache hit and miss notifications.
type Observer interface {
	ObserveCacheHit(backend string)
	ObserveCacheMiss(backend string)
}

type noopObserver struct{}

func (noopObserver) ObserveCacheHit(string)  {}
func (noopObserver) ObserveCacheMiss(string) {}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a size-bounded LRU with a global TTL. A shorter per-entry ttl
// passed to Set is honored on read.
type MemoryCache struct {
	lru      *expirable.LRU[string, memoryEntry]
	observer Observer
	now      func() time.Time
}

var _ ports.Cache = (*MemoryCache)(nil)

func NewMemoryCache(size int, ttl time.Duration, observer Observer) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &MemoryCache{
		lru:      expirable.NewLRU[string, memoryEntry](size, nil, ttl),
		observer: observer,
		now:      time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return "", false, err
	}

	entry, ok := c.lru.Get(trimmedKey)
	if ok && !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.lru.Remove(trimmedKey)
		ok = false
	}
	if !ok {
		c.observer.ObserveCacheMiss(BackendMemory)
		return "", false, nil
	}
	c.observer.ObserveCacheHit(BackendMemory)
	return entry.value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(trimmedKey, entry)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}
	c.lru.Remove(trimmedKey)
	return nil
}

func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// NoopCache never stores anything.
type NoopCache struct{}

var _ ports.Cache = NoopCache{}

func (NoopCache) Get(context.Context, string) (string, bool, error)          { return "", false, nil }
func (NoopCache) Set(context.Context, string, string, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, string) error                      { return nil }

func checkKey(ctx context.Context, key string) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "check context")
	}
	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return "", errors.New("key is required")
	}
	return trimmedKey, nil
}
