package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

func newTestRetriever(embedder *embedderFake, index *indexFake, cache *cacheFake, cfg RetrieverConfig) *RetrieveUseCase {
	var resultCache *cacheFake
	if cache != nil {
		resultCache = cache
	}
	centroid := NewCentroidCache(index, 100)
	if resultCache == nil {
		return NewRetrieveUseCase(embedder, index, nil, centroid, cfg, nil, nil)
	}
	return NewRetrieveUseCase(embedder, index, resultCache, centroid, cfg, nil, nil)
}

func seedCorpus(t *testing.T, embedder *embedderFake, index *indexFake, texts ...string) {
	t.Helper()
	ingestor := newTestIngestor(embedder, index, IngestConfig{BatchSize: 50})
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			ID:               text,
			SourceDocumentID: "doc-1",
			Text:             text,
			Position:         i,
		})
	}
	if _, err := ingestor.Ingest(context.Background(), chunks); err != nil {
		t.Fatalf("seed ingest error = %v", err)
	}
	index.searchCalls = 0
}

func TestRetrieveEmptyCorpusSkipsIndexSearch(t *testing.T) {
	embedder := newEmbedderFake(4)
	index := &indexFake{}
	uc := newTestRetriever(embedder, index, newCacheFake(), RetrieverConfig{})

	out, err := uc.Retrieve(context.Background(), "what is the refund policy", 4, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.Decision.Reason != domain.ReasonNoCorpus || out.Decision.Allowed {
		t.Fatalf("decision = %+v, want disallowed no_corpus", out.Decision)
	}
	if len(out.Results) != 0 || out.Context != "" {
		t.Fatalf("expected empty results, got %+v", out)
	}
	if index.searchCalls != 0 {
		t.Fatalf("similarity search called %d times, want 0", index.searchCalls)
	}
}

func TestRetrieveTooShortQuery(t *testing.T) {
	embedder := newEmbedderFake(4)
	index := &indexFake{}
	uc := newTestRetriever(embedder, index, newCacheFake(), RetrieverConfig{MinQueryTokens: 2})

	out, err := uc.Retrieve(context.Background(), "hi", 4, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.Decision.Reason != domain.ReasonTooShort || out.Decision.Allowed {
		t.Fatalf("decision = %+v, want disallowed too_short", out.Decision)
	}
}

func TestRetrieveLowIntentQuery(t *testing.T) {
	embedder := newEmbedderFake(3)
	// Corpus vectors along x; the query is nearly orthogonal.
	embedder.vectorsByText["billing terms"] = []float32{1, 0, 0}
	embedder.vectorsByText["invoice schedule"] = []float32{0.9, 0.1, 0}
	embedder.vectorsByText["tell me a joke"] = []float32{0.2, 0.98, 0}
	index := &indexFake{}
	seedCorpus(t, embedder, index, "billing terms", "invoice schedule")

	uc := newTestRetriever(embedder, index, newCacheFake(), RetrieverConfig{
		GatingThreshold: 0.45,
		GatingKeywords:  []string{"invoice", "billing"},
	})

	out, err := uc.Retrieve(context.Background(), "tell me a joke", 4, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.Decision.Reason != domain.ReasonLowIntent || out.Decision.Allowed {
		t.Fatalf("decision = %+v, want disallowed low_intent", out.Decision)
	}
	if len(out.Results) != 0 {
		t.Fatalf("expected empty results, got %d", len(out.Results))
	}
	if index.searchCalls != 0 {
		t.Fatalf("similarity search called %d times, want 0", index.searchCalls)
	}
}

func TestRetrieveKeywordFallback(t *testing.T) {
	embedder := newEmbedderFake(3)
	embedder.vectorsByText["billing terms"] = []float32{1, 0, 0}
	embedder.vectorsByText["where is my invoice"] = []float32{0.1, 0.99, 0}
	index := &indexFake{}
	seedCorpus(t, embedder, index, "billing terms")

	uc := newTestRetriever(embedder, index, newCacheFake(), RetrieverConfig{
		GatingThreshold: 0.45,
		GatingKeywords:  []string{"invoice", "billing"},
	})

	out, err := uc.Retrieve(context.Background(), "where is my invoice", 4, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.Decision.Reason != domain.ReasonKeywordMatch || !out.Decision.Allowed {
		t.Fatalf("decision = %+v, want allowed keyword_match", out.Decision)
	}
	if index.searchCalls != 1 {
		t.Fatalf("similarity search called %d times, want 1", index.searchCalls)
	}
}

func TestRetrieveSemanticMatchReturnsRankedResults(t *testing.T) {
	embedder := newEmbedderFake(3)
	embedder.vectorsByText["refund policy details"] = []float32{1, 0, 0}
	embedder.vectorsByText["shipping times"] = []float32{0, 1, 0}
	embedder.vectorsByText["how do refunds work"] = []float32{0.95, 0.1, 0}
	index := &indexFake{}
	seedCorpus(t, embedder, index, "refund policy details", "shipping times")

	uc := newTestRetriever(embedder, index, newCacheFake(), RetrieverConfig{
		GatingThreshold:     0.40,
		SimilarityThreshold: 0.5,
	})

	out, err := uc.Retrieve(context.Background(), "how do refunds work", 2, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.Decision.Reason != domain.ReasonSemanticMatch || !out.Decision.Allowed {
		t.Fatalf("decision = %+v, want allowed semantic_match", out.Decision)
	}
	if len(out.Results) != 1 {
		t.Fatalf("results = %d, want 1 (threshold drops orthogonal chunk)", len(out.Results))
	}
	if out.Results[0].Chunk.Text != "refund policy details" {
		t.Fatalf("top result = %q", out.Results[0].Chunk.Text)
	}
	if !strings.Contains(out.Context, "refund policy details") || !strings.Contains(out.Context, "doc-1") {
		t.Fatalf("context missing attribution: %q", out.Context)
	}
}

func TestRetrieveCacheHitSkipsSearch(t *testing.T) {
	embedder := newEmbedderFake(3)
	embedder.vectorsByText["refund policy details"] = []float32{1, 0, 0}
	embedder.vectorsByText["how do refunds work"] = []float32{0.95, 0.1, 0}
	index := &indexFake{}
	cache := newCacheFake()
	seedCorpus(t, embedder, index, "refund policy details")

	uc := newTestRetriever(embedder, index, cache, RetrieverConfig{GatingThreshold: 0.40})

	for i := 0; i < 2; i++ {
		if _, err := uc.Retrieve(context.Background(), "how do refunds work", 2, domain.SearchFilter{}); err != nil {
			t.Fatalf("Retrieve() #%d error = %v", i+1, err)
		}
	}
	if index.searchCalls != 1 {
		t.Fatalf("similarity search called %d times, want 1", index.searchCalls)
	}

	// Once entries expire, the next call searches again.
	cache.expired = true
	if _, err := uc.Retrieve(context.Background(), "how do refunds work", 2, domain.SearchFilter{}); err != nil {
		t.Fatalf("Retrieve() after expiry error = %v", err)
	}
	if index.searchCalls != 2 {
		t.Fatalf("similarity search called %d times after expiry, want 2", index.searchCalls)
	}
}

func TestRetrieveStaleGenerationIsMiss(t *testing.T) {
	embedder := newEmbedderFake(3)
	embedder.vectorsByText["refund policy details"] = []float32{1, 0, 0}
	embedder.vectorsByText["how do refunds work"] = []float32{0.95, 0.1, 0}
	index := &indexFake{}
	cache := newCacheFake()
	seedCorpus(t, embedder, index, "refund policy details")

	uc := newTestRetriever(embedder, index, cache, RetrieverConfig{GatingThreshold: 0.40})

	if _, err := uc.Retrieve(context.Background(), "how do refunds work", 2, domain.SearchFilter{}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	uc.CorpusChanged()
	if _, err := uc.Retrieve(context.Background(), "how do refunds work", 2, domain.SearchFilter{}); err != nil {
		t.Fatalf("Retrieve() after invalidation error = %v", err)
	}
	if index.searchCalls != 2 {
		t.Fatalf("similarity search called %d times, want 2 (stale generation is a miss)", index.searchCalls)
	}
}

func TestRetrieveEmbeddingFaultDegradesToAllowed(t *testing.T) {
	embedder := newEmbedderFake(3)
	embedder.vectorsByText["refund policy details"] = []float32{1, 0, 0}
	index := &indexFake{}
	seedCorpus(t, embedder, index, "refund policy details")
	embedder.err = errors.New("provider down")

	uc := newTestRetriever(embedder, index, newCacheFake(), RetrieverConfig{})

	out, err := uc.Retrieve(context.Background(), "how do refunds work", 2, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.Decision.Reason != domain.ReasonError || !out.Decision.Allowed {
		t.Fatalf("decision = %+v, want allowed error", out.Decision)
	}
	if len(out.Results) != 0 {
		t.Fatalf("expected empty ungrounded result, got %d", len(out.Results))
	}
}

func TestRetrieveIndexFailureIsSurfaced(t *testing.T) {
	embedder := newEmbedderFake(3)
	embedder.vectorsByText["refund policy details"] = []float32{1, 0, 0}
	embedder.vectorsByText["how do refunds work"] = []float32{0.95, 0.1, 0}
	index := &indexFake{}
	seedCorpus(t, embedder, index, "refund policy details")
	index.searchErr = domain.WrapError(domain.ErrIndexUnavailable, "search", errors.New("connection refused"))

	uc := newTestRetriever(embedder, index, newCacheFake(), RetrieverConfig{GatingThreshold: 0.40})

	_, err := uc.Retrieve(context.Background(), "how do refunds work", 2, domain.SearchFilter{})
	if err == nil {
		t.Fatalf("expected surfaced index error")
	}
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestRetrieveRoundTripSelfSimilarity(t *testing.T) {
	embedder := newEmbedderFake(3)
	embedder.vectorsByText["refund policy details"] = []float32{0.6, 0.8, 0}
	index := &indexFake{}
	seedCorpus(t, embedder, index, "refund policy details")

	uc := newTestRetriever(embedder, index, newCacheFake(), RetrieverConfig{GatingThreshold: 0.40})

	out, err := uc.Retrieve(context.Background(), "refund policy details", 1, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(out.Results))
	}
	if got := out.Results[0].Score; got < 0.999 {
		t.Fatalf("self-similarity score = %f, want ~1.0", got)
	}
}
