package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/docchat-ai/retrieval/internal/core/domain"
	"github.com/docchat-ai/retrieval/internal/core/ports"
)

// CentroidCache holds the lazily computed mean vector of the indexed corpus.
// It is recomputed on first access after Invalidate, which the ingestion
// coordinator calls on every corpus change.
type CentroidCache struct {
	index       ports.VectorIndex
	sampleLimit int

	mu       sync.Mutex
	valid    bool
	centroid []float32
}

func NewCentroidCache(index ports.VectorIndex, sampleLimit int) *CentroidCache {
	if sampleLimit <= 0 {
		sampleLimit = 2048
	}
	return &CentroidCache{
		index:       index,
		sampleLimit: sampleLimit,
	}
}

// Centroid returns the cached mean vector, computing it when stale. A nil
// vector with nil error means the corpus is empty.
func (c *CentroidCache) Centroid(ctx context.Context) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid {
		return c.centroid, nil
	}

	count, err := c.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count indexed vectors: %w", err)
	}
	if count == 0 {
		c.centroid = nil
		c.valid = true
		return nil, nil
	}

	vectors, err := c.index.SampleVectors(ctx, c.sampleLimit)
	if err != nil {
		return nil, fmt.Errorf("sample vectors for centroid: %w", err)
	}
	if len(vectors) == 0 {
		c.centroid = nil
		c.valid = true
		return nil, nil
	}

	c.centroid = domain.Centroid(vectors)
	c.valid = true
	return c.centroid, nil
}

// Invalidate marks the cached centroid stale. The next Centroid call
// recomputes it.
func (c *CentroidCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.centroid = nil
	c.mu.Unlock()
}
