package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/docchat-ai/retrieval/internal/core/domain"
	"github.com/docchat-ai/retrieval/internal/core/ports"
)

const (
	ModeSemantic = "semantic"
	ModeMMR      = "mmr"
)

// RetrieverConfig carries the tuning knobs of the retrieval coordinator. The
// gating threshold and keyword set are configuration on purpose, not derived
// constants.
type RetrieverConfig struct {
	DefaultK            int
	KMultiplier         int
	Mode                string
	MMRLambda           float64
	SimilarityThreshold float64
	GatingThreshold     float64
	MinQueryTokens      int
	GatingKeywords      []string
	CacheTTL            time.Duration
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.DefaultK <= 0 {
		out.DefaultK = 4
	}
	if out.KMultiplier <= 0 {
		out.KMultiplier = 3
	}
	if out.Mode != ModeMMR {
		out.Mode = ModeSemantic
	}
	if out.MMRLambda <= 0 || out.MMRLambda > 1 {
		out.MMRLambda = 0.5
	}
	if out.GatingThreshold <= 0 {
		out.GatingThreshold = 0.42
	}
	if out.MinQueryTokens <= 0 {
		out.MinQueryTokens = 2
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = time.Hour
	}
	return out
}

// RetrievalObserver receives retrieval-path events for metrics. Implementations
// must be safe for concurrent use; a nil observer disables observation.
type RetrievalObserver interface {
	ObserveGating(reason domain.GatingReason)
	ObserveCache(hit bool)
	ObserveSearch(duration time.Duration)
}

// RetrieveUseCase is the retrieval coordinator: gating, candidate fetch,
// diversification, thresholding, formatting, and result-cache memoization.
type RetrieveUseCase struct {
	embedder ports.EmbeddingProvider
	index    ports.VectorIndex
	cache    ports.ResultCache
	centroid *CentroidCache
	cfg      RetrieverConfig
	logger   *slog.Logger
	observer RetrievalObserver

	generation atomic.Uint64
}

func NewRetrieveUseCase(
	embedder ports.EmbeddingProvider,
	index ports.VectorIndex,
	cache ports.ResultCache,
	centroid *CentroidCache,
	cfg RetrieverConfig,
	logger *slog.Logger,
	observer RetrievalObserver,
) *RetrieveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{
		embedder: embedder,
		index:    index,
		cache:    cache,
		centroid: centroid,
		cfg:      cfg.normalize(),
		logger:   logger,
		observer: observer,
	}
}

// Generation returns the current corpus generation counter.
func (uc *RetrieveUseCase) Generation() uint64 {
	return uc.generation.Load()
}

// CorpusChanged invalidates the centroid cache and advances the generation
// counter, turning every stored result-cache entry into a miss. Called by the
// ingestion coordinator after ingest, per-source delete, and corpus clear.
func (uc *RetrieveUseCase) CorpusChanged() uint64 {
	uc.centroid.Invalidate()
	return uc.generation.Add(1)
}

// Retrieve runs gate -> cache check -> fetch -> rerank -> threshold -> format.
// "No relevant passages" is an empty result set, never an error.
func (uc *RetrieveUseCase) Retrieve(
	ctx context.Context,
	query string,
	k int,
	filter domain.SearchFilter,
) (domain.Retrieval, error) {
	if k <= 0 {
		k = uc.cfg.DefaultK
	}
	normalized := normalizeQuery(query)

	decision, queryVector, err := uc.gate(ctx, query, normalized)
	if err != nil {
		return domain.Retrieval{}, err
	}
	uc.observeGating(decision.Reason)
	if !decision.Allowed {
		return domain.Retrieval{Decision: decision}, nil
	}

	key := cacheKey(normalized, k, filter)
	if cached, ok := uc.cachedResults(ctx, key); ok {
		uc.observeCache(true)
		return domain.Retrieval{
			Decision: decision,
			Results:  cached,
			Context:  FormatContext(cached),
		}, nil
	}
	uc.observeCache(false)

	// Gating degraded on an embedding fault: retrieval is allowed but there
	// is no query vector to search with, so the caller answers ungrounded.
	if len(queryVector) == 0 {
		return domain.Retrieval{Decision: decision}, nil
	}

	fetchK := k * uc.cfg.KMultiplier
	start := time.Now()
	candidates, err := uc.index.SimilaritySearch(ctx, queryVector, fetchK, filter)
	if err != nil {
		return domain.Retrieval{}, fmt.Errorf("search vector index: %w", err)
	}
	uc.observeSearch(time.Since(start))

	var ranked []domain.ScoredChunk
	switch uc.cfg.Mode {
	case ModeMMR:
		ranked = selectMMR(queryVector, candidates, k, uc.cfg.MMRLambda)
	default:
		ranked = rerankSemantic(queryVector, normalized, candidates, k)
	}
	ranked = thresholdResults(ranked, uc.cfg.SimilarityThreshold)

	uc.storeResults(ctx, key, ranked)

	return domain.Retrieval{
		Decision: decision,
		Results:  ranked,
		Context:  FormatContext(ranked),
	}, nil
}

// gate decides whether retrieval is worthwhile for this query. Gating faults
// degrade to "allowed" with reason error; they never block the user.
func (uc *RetrieveUseCase) gate(
	ctx context.Context,
	query, normalized string,
) (domain.GatingDecision, []float32, error) {
	tokens := toTokenSet(normalized)
	if len(tokens) < uc.cfg.MinQueryTokens {
		return domain.GatingDecision{Reason: domain.ReasonTooShort}, nil, nil
	}

	centroidVec, err := uc.centroid.Centroid(ctx)
	if err != nil {
		uc.logger.Warn("centroid unavailable during gating, allowing retrieval",
			"error", err,
		)
		queryVector := uc.embedQueryLenient(ctx, query)
		return domain.GatingDecision{Allowed: true, Reason: domain.ReasonError}, queryVector, nil
	}
	if centroidVec == nil {
		return domain.GatingDecision{Reason: domain.ReasonNoCorpus}, nil, nil
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		uc.logger.Warn("query embedding failed during gating, allowing retrieval",
			"error", err,
		)
		return domain.GatingDecision{Allowed: true, Reason: domain.ReasonError}, nil, nil
	}

	sim := domain.CosineSimilarity(queryVector, centroidVec)
	switch {
	case sim >= uc.cfg.GatingThreshold:
		return domain.GatingDecision{
			Allowed:    true,
			Reason:     domain.ReasonSemanticMatch,
			Similarity: sim,
		}, queryVector, nil
	case keywordMatch(tokens, uc.cfg.GatingKeywords):
		return domain.GatingDecision{
			Allowed:    true,
			Reason:     domain.ReasonKeywordMatch,
			Similarity: sim,
		}, queryVector, nil
	default:
		return domain.GatingDecision{
			Reason:     domain.ReasonLowIntent,
			Similarity: sim,
		}, nil, nil
	}
}

func (uc *RetrieveUseCase) embedQueryLenient(ctx context.Context, query string) []float32 {
	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		uc.logger.Warn("query embedding failed", "error", err)
		return nil
	}
	return vector
}

func (uc *RetrieveUseCase) cachedResults(ctx context.Context, key string) ([]domain.ScoredChunk, bool) {
	if uc.cache == nil {
		return nil, false
	}
	raw, found, err := uc.cache.Get(ctx, key)
	if err != nil {
		uc.logger.Warn("result cache get failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry domain.CachedRetrieval
	if err := json.Unmarshal(raw, &entry); err != nil {
		uc.logger.Warn("result cache entry malformed", "error", err)
		return nil, false
	}
	if entry.Generation != uc.generation.Load() {
		return nil, false
	}
	return entry.Results, true
}

func (uc *RetrieveUseCase) storeResults(ctx context.Context, key string, results []domain.ScoredChunk) {
	if uc.cache == nil {
		return
	}
	raw, err := json.Marshal(domain.CachedRetrieval{
		Generation: uc.generation.Load(),
		Results:    results,
	})
	if err != nil {
		uc.logger.Warn("result cache marshal failed", "error", err)
		return
	}
	if err := uc.cache.Set(ctx, key, raw, uc.cfg.CacheTTL); err != nil {
		uc.logger.Warn("result cache set failed", "error", err)
	}
}

func (uc *RetrieveUseCase) observeGating(reason domain.GatingReason) {
	if uc.observer != nil {
		uc.observer.ObserveGating(reason)
	}
}

func (uc *RetrieveUseCase) observeCache(hit bool) {
	if uc.observer != nil {
		uc.observer.ObserveCache(hit)
	}
}

func (uc *RetrieveUseCase) observeSearch(d time.Duration) {
	if uc.observer != nil {
		uc.observer.ObserveSearch(d)
	}
}
