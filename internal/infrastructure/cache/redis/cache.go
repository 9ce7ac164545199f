package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// Config holds connection parameters for the Redis cache backend.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// Prefix namespaces every key so Clear only touches cache entries.
	Prefix string
}

// Cache stores serialized retrieval results in Redis via rueidis.
type Cache struct {
	client rueidis.Client
	prefix string
}

func New(cfg Config) (*Cache, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "retrieval:"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return &Cache{client: client, prefix: prefix}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := c.client.B().Get().Key(c.prefix + key).Build()
	data, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, domain.WrapError(domain.ErrCacheUnavailable, "cache get", err)
	}
	return data, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	builder := c.client.B().Set().Key(c.prefix + key).Value(string(value))
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return domain.WrapError(domain.ErrCacheUnavailable, "cache set", err)
	}
	return nil
}

// Clear removes every key under the cache prefix, scanning in batches so the
// server is never blocked by a KEYS call.
func (c *Cache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		cmd := c.client.B().Scan().Cursor(cursor).Match(c.prefix + "*").Count(512).Build()
		entry, err := c.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return domain.WrapError(domain.ErrCacheUnavailable, "cache clear", err)
		}
		if len(entry.Elements) > 0 {
			del := c.client.B().Del().Key(entry.Elements...).Build()
			if err := c.client.Do(ctx, del).Error(); err != nil {
				return domain.WrapError(domain.ErrCacheUnavailable, "cache clear", err)
			}
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks connectivity; the fallback wrapper calls it once at startup.
func (c *Cache) Ping(ctx context.Context) error {
	cmd := c.client.B().Ping().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return domain.WrapError(domain.ErrCacheUnavailable, "cache ping", err)
	}
	return nil
}

func (c *Cache) Close() {
	c.client.Close()
}
