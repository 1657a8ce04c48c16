package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memoryCache is the single-process backend. Expired entries are swept on an
// interval by a janitor goroutine.
type memoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	group singleflight.Group
	stop  chan struct{}
	once  sync.Once
}

// NewMemory returns an in-process Cache sweeping expired entries every
// sweepInterval.
func NewMemory(sweepInterval time.Duration) *memoryCache {
	c := &memoryCache{
		items: make(map[string]memoryEntry),
		stop:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.janitor(sweepInterval)
	}
	return c
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, v := range c.items {
				if v.expired(now) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the janitor. Safe to call more than once.
func (c *memoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		cacheMiss.Inc()
		return "", ErrCacheMiss
	}
	cacheHits.Inc()
	return entry.value, nil
}

func (c *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.items, key)
	}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) DelPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	for key := range c.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.items, key)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory func(ctx context.Context) (string, error)) (string, error) {
	if val, err := c.Get(ctx, key); err == nil {
		return val, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		fresh, err := factory(ctx)
		if err != nil {
			return "", err
		}
		_ = c.Set(ctx, key, fresh, ttl)
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}
