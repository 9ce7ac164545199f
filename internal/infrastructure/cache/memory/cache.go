package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process TTL cache. Expired entries count as misses
// immediately; physical removal happens lazily and on a periodic sweep.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time

	sweepEvery int
	writes     int
}

func New() *Cache {
	return &Cache{
		entries:    make(map[string]entry),
		now:        time.Now,
		sweepEvery: 256,
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry{value: value, expiresAt: expiresAt}

	c.writes++
	if c.writes >= c.sweepEvery {
		c.writes = 0
		c.sweepLocked()
	}
	return nil
}

func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	return nil
}

func (c *Cache) sweepLocked() {
	now := c.now()
	for key, e := range c.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
