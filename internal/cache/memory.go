package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"
)

// memoryItem holds a cached value with its expiry time.
type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// MemoryCache implements Cache with an in-process map. It is intended for
// tests and single-instance deployments.
type MemoryCache struct {
	mu     sync.RWMutex
	items  map[string]memoryItem
	config Config
	hits   int64
	misses int64
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(cfg Config) *MemoryCache {
	return &MemoryCache{
		items:  make(map[string]memoryItem),
		config: cfg,
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok || item.expired(time.Now()) {
		if ok {
			delete(c.items, key)
		}
		c.misses++
		return nil, ErrCacheMiss
	}
	c.hits++

	// Copy so callers cannot mutate the stored value.
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

// Set stores a value in the cache with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.MaxItems > 0 && len(c.items) >= c.config.MaxItems {
		c.evictExpired()
		if len(c.items) >= c.config.MaxItems {
			c.evictOldest()
		}
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.items[key] = memoryItem{value: stored, expiresAt: expiresAt}
	return nil
}

// Delete removes a key from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// GetJSON retrieves a value and unmarshals it into dest.
func (c *MemoryCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal cached value: %w", err)
	}
	return nil
}

// SetJSON marshals a value and stores it in the cache.
func (c *MemoryCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

// DeletePattern removes all keys matching the given glob pattern.
func (c *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.items, key)
		}
	}
	return nil
}

// Close is a no-op for the memory cache.
func (c *MemoryCache) Close() error {
	return nil
}

// Health always succeeds for the memory cache.
func (c *MemoryCache) Health(ctx context.Context) error {
	return nil
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:   c.hits,
		Misses: c.misses,
		Keys:   int64(len(c.items)),
	}
}

// evictExpired removes expired items. Caller must hold the lock.
func (c *MemoryCache) evictExpired() {
	now := time.Now()
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}

// evictOldest removes the item closest to expiry. Caller must hold the lock.
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, item := range c.items {
		if first || item.expiresAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = item.expiresAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
