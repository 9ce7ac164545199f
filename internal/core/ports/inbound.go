package ports

import (
	"context"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// ChunkIngestor is the inbound contract for the write path: chunk batches in,
// dedup + embed + index, summary out.
type ChunkIngestor interface {
	Ingest(ctx context.Context, chunks []domain.Chunk) (domain.IngestSummary, error)
	DeleteSource(ctx context.Context, sourceID string) error
	ClearCorpus(ctx context.Context) error
}

// Retriever is the inbound contract for the read path consumed by the
// answer-generation layer.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter domain.SearchFilter) (domain.Retrieval, error)
}

// CorpusStatus serves the administrative status endpoint.
type CorpusStatus interface {
	Counts(ctx context.Context) (domain.CorpusCounts, error)
}
