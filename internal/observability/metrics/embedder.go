package metrics

import (
	"context"
	"time"

	"github.com/docchat-ai/retrieval/internal/core/ports"
)

// InstrumentedEmbedder decorates an embedding provider with duration metrics.
type InstrumentedEmbedder struct {
	inner   ports.EmbeddingProvider
	metrics *ServerMetrics
}

func NewInstrumentedEmbedder(inner ports.EmbeddingProvider, metrics *ServerMetrics) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, metrics: metrics}
}

func (e *InstrumentedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *InstrumentedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	e.metrics.ObserveEmbedding("documents", time.Since(start), err)
	return vectors, err
}

func (e *InstrumentedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := e.inner.EmbedQuery(ctx, text)
	e.metrics.ObserveEmbedding("query", time.Since(start), err)
	return vector, err
}
