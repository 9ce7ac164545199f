package ports

import (
	"context"
	"time"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// EmbeddingProvider converts text to fixed-dimension vectors. Exactly one of
// the two variants (remote API or local model) is active at a time, selected
// at construction; callers never inspect which.
type EmbeddingProvider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorIndex stores and searches embeddings in the external index.
type VectorIndex interface {
	AddDocuments(ctx context.Context, docs []domain.IndexedDocument) error
	SimilaritySearch(ctx context.Context, queryVector []float32, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
	// SampleVectors returns up to limit stored vectors, used for dedup
	// comparison and centroid computation.
	SampleVectors(ctx context.Context, limit int) ([][]float32, error)
	// StoredVector looks up the persisted vector for exact chunk text.
	// Returns nil without error when the content is not indexed.
	StoredVector(ctx context.Context, content string) ([]float32, error)
	DeleteBySource(ctx context.Context, sourceID string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// ResultCache is a pluggable key/value store with TTL. Entries past their
// expiry are misses even if not yet physically removed.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// SourceRegistry tracks ingested source documents for the status endpoint and
// per-source deletion bookkeeping.
type SourceRegistry interface {
	RecordIngest(ctx context.Context, sourceID string, chunkCount int) error
	DeleteSource(ctx context.Context, sourceID string) error
	Clear(ctx context.Context) error
	Counts(ctx context.Context) (domain.CorpusCounts, error)
}

// InvalidationBus broadcasts corpus-change events so sibling replicas drop
// their centroid and result-cache state.
type InvalidationBus interface {
	PublishCorpusChanged(ctx context.Context, generation uint64) error
	SubscribeCorpusChanged(ctx context.Context, handler func(context.Context, uint64) error) error
	Close()
}
