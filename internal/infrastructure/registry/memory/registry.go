package memory

import (
	"context"
	"sync"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// Registry is the in-process source registry used when Postgres is not
// configured. Counts reset with the process.
type Registry struct {
	mu      sync.Mutex
	sources map[string]int
}

func New() *Registry {
	return &Registry{sources: make(map[string]int)}
}

func (r *Registry) RecordIngest(_ context.Context, sourceID string, chunkCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[sourceID] += chunkCount
	return nil
}

func (r *Registry) DeleteSource(_ context.Context, sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, sourceID)
	return nil
}

func (r *Registry) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = make(map[string]int)
	return nil
}

func (r *Registry) Counts(context.Context) (domain.CorpusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := domain.CorpusCounts{DocumentCount: len(r.sources)}
	for _, n := range r.sources {
		counts.VectorCount += n
	}
	return counts, nil
}
