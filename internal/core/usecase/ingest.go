package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/docchat-ai/retrieval/internal/core/domain"
	"github.com/docchat-ai/retrieval/internal/core/ports"
)

// IngestConfig carries the write-path tuning knobs.
type IngestConfig struct {
	BatchSize          int
	MaxConcurrentTasks int
	DedupThreshold     float64
	DedupSampleLimit   int
}

func (c IngestConfig) normalize() IngestConfig {
	out := c
	if out.BatchSize <= 0 {
		out.BatchSize = 32
	}
	if out.MaxConcurrentTasks <= 0 {
		out.MaxConcurrentTasks = 4
	}
	if out.DedupThreshold <= 0 || out.DedupThreshold > 1 {
		out.DedupThreshold = 0.95
	}
	if out.DedupSampleLimit <= 0 {
		out.DedupSampleLimit = 512
	}
	return out
}

// CorpusInvalidator is notified after every corpus mutation. The retrieval
// coordinator implements it by dropping the centroid cache and advancing the
// result-cache generation; the new generation is returned for broadcasting.
type CorpusInvalidator interface {
	CorpusChanged() uint64
}

// IngestUseCase is the ingestion coordinator: it partitions chunk batches,
// embeds them, deduplicates by cosine similarity, and writes accepted pairs to
// the vector index under a bounded concurrency semaphore.
type IngestUseCase struct {
	embedder    ports.EmbeddingProvider
	index       ports.VectorIndex
	registry    ports.SourceRegistry
	bus         ports.InvalidationBus
	invalidator CorpusInvalidator
	cfg         IngestConfig
	logger      *slog.Logger
}

func NewIngestUseCase(
	embedder ports.EmbeddingProvider,
	index ports.VectorIndex,
	registry ports.SourceRegistry,
	bus ports.InvalidationBus,
	invalidator CorpusInvalidator,
	cfg IngestConfig,
	logger *slog.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		embedder:    embedder,
		index:       index,
		registry:    registry,
		bus:         bus,
		invalidator: invalidator,
		cfg:         cfg.normalize(),
		logger:      logger,
	}
}

// Ingest embeds and indexes the given chunks. Duplicate chunks (cosine
// similarity >= DedupThreshold against an already accepted chunk of this run
// or against a sample of the existing corpus) are discarded. A failed batch is
// reported in the summary without aborting sibling batches.
func (uc *IngestUseCase) Ingest(ctx context.Context, chunks []domain.Chunk) (domain.IngestSummary, error) {
	if len(chunks) == 0 {
		return domain.IngestSummary{}, nil
	}

	existing, err := uc.index.SampleVectors(ctx, uc.cfg.DedupSampleLimit)
	if err != nil {
		return domain.IngestSummary{}, fmt.Errorf("sample existing vectors: %w", err)
	}

	run := &ingestRun{
		existing:  existing,
		threshold: uc.cfg.DedupThreshold,
	}

	batches := partitionChunks(chunks, uc.cfg.BatchSize)
	sem := make(chan struct{}, uc.cfg.MaxConcurrentTasks)
	var wg sync.WaitGroup

	for _, batch := range batches {
		wg.Add(1)
		sem <- struct{}{}
		go func(batch []domain.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := uc.processBatch(ctx, batch, run); err != nil {
				run.recordFailure(err)
				uc.logger.Warn("ingestion batch failed",
					"batch_size", len(batch),
					"error", err,
				)
			}
		}(batch)
	}
	wg.Wait()

	summary := run.summary()
	uc.recordSources(ctx, run.acceptedBySource())
	if summary.Added > 0 {
		uc.afterCorpusChange(ctx)
	}

	uc.logger.Info("ingestion finished",
		"chunks", len(chunks),
		"added", summary.Added,
		"skipped_duplicates", summary.SkippedDuplicates,
		"failed_batches", summary.FailedBatches,
	)
	return summary, nil
}

// DeleteSource removes every indexed chunk of one source document.
func (uc *IngestUseCase) DeleteSource(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete source", fmt.Errorf("empty source id"))
	}
	if err := uc.index.DeleteBySource(ctx, sourceID); err != nil {
		return fmt.Errorf("delete source from index: %w", err)
	}
	if uc.registry != nil {
		if err := uc.registry.DeleteSource(ctx, sourceID); err != nil {
			uc.logger.Warn("source registry delete failed", "source_id", sourceID, "error", err)
		}
	}
	uc.afterCorpusChange(ctx)
	return nil
}

// ClearCorpus drops every indexed chunk.
func (uc *IngestUseCase) ClearCorpus(ctx context.Context) error {
	if err := uc.index.Clear(ctx); err != nil {
		return fmt.Errorf("clear vector index: %w", err)
	}
	if uc.registry != nil {
		if err := uc.registry.Clear(ctx); err != nil {
			uc.logger.Warn("source registry clear failed", "error", err)
		}
	}
	uc.afterCorpusChange(ctx)
	return nil
}

func (uc *IngestUseCase) processBatch(ctx context.Context, batch []domain.Chunk, run *ingestRun) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	vectors, err := uc.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return domain.WrapError(
			domain.ErrEmbedding,
			"embed batch",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
		)
	}

	dim := uc.embedder.Dimension()
	accepted := make([]domain.IndexedDocument, 0, len(batch))
	skipped := 0
	for i, chunk := range batch {
		if err := domain.CheckDimension(vectors[i], dim); err != nil {
			return fmt.Errorf("chunk %s: %w", chunk.ID, err)
		}
		if !run.accept(vectors[i]) {
			skipped++
			continue
		}
		accepted = append(accepted, domain.IndexedDocument{
			Chunk:  chunk,
			Vector: vectors[i],
		})
	}

	if len(accepted) > 0 {
		if err := uc.index.AddDocuments(ctx, accepted); err != nil {
			run.release(accepted)
			return fmt.Errorf("index batch: %w", err)
		}
	}

	run.recordOutcome(accepted, skipped)
	return nil
}

func (uc *IngestUseCase) recordSources(ctx context.Context, bySource map[string]int) {
	if uc.registry == nil {
		return
	}
	for sourceID, count := range bySource {
		if err := uc.registry.RecordIngest(ctx, sourceID, count); err != nil {
			uc.logger.Warn("source registry record failed", "source_id", sourceID, "error", err)
		}
	}
}

func (uc *IngestUseCase) afterCorpusChange(ctx context.Context) {
	var generation uint64
	if uc.invalidator != nil {
		generation = uc.invalidator.CorpusChanged()
	}
	if uc.bus != nil {
		if err := uc.bus.PublishCorpusChanged(ctx, generation); err != nil {
			uc.logger.Warn("corpus change broadcast failed", "generation", generation, "error", err)
		}
	}
}

func partitionChunks(chunks []domain.Chunk, size int) [][]domain.Chunk {
	batches := make([][]domain.Chunk, 0, (len(chunks)+size-1)/size)
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}

// ingestRun is the shared dedup state of one ingestion call. Accepted vectors
// are visible to every in-flight batch so duplicates across batches of the
// same run are caught too.
type ingestRun struct {
	threshold float64
	existing  [][]float32

	mu       sync.Mutex
	accepted [][]float32
	docs     []domain.IndexedDocument
	skipped  int
	failures []error
}

// accept reports whether the vector is novel and, if so, registers it so later
// chunks dedup against it.
func (r *ingestRun) accept(vector []float32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.existing {
		if domain.CosineSimilarity(vector, v) >= r.threshold {
			return false
		}
	}
	for _, v := range r.accepted {
		if domain.CosineSimilarity(vector, v) >= r.threshold {
			return false
		}
	}
	r.accepted = append(r.accepted, vector)
	return true
}

// release forgets vectors of a batch whose index write failed, so a re-upload
// of the same chunks is not treated as duplicate by this run.
func (r *ingestRun) release(docs []domain.IndexedDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range docs {
		if len(doc.Vector) == 0 {
			continue
		}
		for i, v := range r.accepted {
			if len(v) > 0 && &v[0] == &doc.Vector[0] {
				r.accepted = append(r.accepted[:i], r.accepted[i+1:]...)
				break
			}
		}
	}
}

func (r *ingestRun) recordOutcome(accepted []domain.IndexedDocument, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, accepted...)
	r.skipped += skipped
}

func (r *ingestRun) recordFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *ingestRun) summary() domain.IngestSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := domain.IngestSummary{
		Added:             len(r.docs),
		SkippedDuplicates: r.skipped,
		FailedBatches:     len(r.failures),
	}
	for _, err := range r.failures {
		summary.Errors = append(summary.Errors, err.Error())
	}
	return summary
}

func (r *ingestRun) acceptedBySource() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int)
	for _, doc := range r.docs {
		out[doc.Chunk.SourceDocumentID]++
	}
	return out
}
