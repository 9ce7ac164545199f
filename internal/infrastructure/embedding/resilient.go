package embedding

import (
	"context"

	"github.com/docchat-ai/retrieval/internal/core/ports"
	"github.com/docchat-ai/retrieval/internal/infrastructure/resilience"
)

// ResilientProvider wraps an embedding provider with retries, a circuit
// breaker and rate limiting. Failed calls keep their classification so the
// retrieval path can degrade instead of erroring out.
type ResilientProvider struct {
	inner    ports.EmbeddingProvider
	executor *resilience.Executor
}

func NewResilientProvider(inner ports.EmbeddingProvider, executor *resilience.Executor) *ResilientProvider {
	return &ResilientProvider{inner: inner, executor: executor}
}

func (p *ResilientProvider) Dimension() int {
	return p.inner.Dimension()
}

func (p *ResilientProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := p.executor.Execute(ctx, "embed_documents", func(ctx context.Context) error {
		var innerErr error
		vectors, innerErr = p.inner.EmbedDocuments(ctx, texts)
		return innerErr
	}, classifyProviderError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed documents", err)
	}
	return vectors, nil
}

func (p *ResilientProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := p.executor.Execute(ctx, "embed_query", func(ctx context.Context) error {
		var innerErr error
		vector, innerErr = p.inner.EmbedQuery(ctx, text)
		return innerErr
	}, classifyProviderError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed query", err)
	}
	return vector, nil
}
