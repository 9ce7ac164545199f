package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/docchat-ai/retrieval/internal/core/ports"
)

// Pinger is the health probe a primary backend must expose.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Fallback serves from a shared primary backend when it is reachable at
// startup and pins an in-process backend for the rest of the process lifetime
// otherwise. Runtime faults of the chosen backend degrade to misses; a cache
// error never fails a retrieval.
type Fallback struct {
	backend ports.ResultCache
	logger  *slog.Logger
}

// NewFallback probes the primary once. Passing a nil primary selects the
// fallback directly without logging a degradation.
func NewFallback(
	ctx context.Context,
	primary ports.ResultCache,
	fallback ports.ResultCache,
	logger *slog.Logger,
) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	if primary == nil {
		return &Fallback{backend: fallback, logger: logger}
	}

	if pinger, ok := primary.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			logger.Warn("shared result cache unreachable, using in-process cache",
				"error", err,
			)
			return &Fallback{backend: fallback, logger: logger}
		}
	}
	return &Fallback{backend: primary, logger: logger}
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := f.backend.Get(ctx, key)
	if err != nil {
		f.logger.Warn("cache get failed, treating as miss", "error", err)
		return nil, false, nil
	}
	return value, ok, nil
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.backend.Set(ctx, key, value, ttl); err != nil {
		f.logger.Warn("cache set failed, skipping store", "error", err)
	}
	return nil
}

func (f *Fallback) Clear(ctx context.Context) error {
	return f.backend.Clear(ctx)
}
