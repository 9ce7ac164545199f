package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// embedderFake returns deterministic unit vectors. Texts sharing a prefix key
// in vectorsByText collide exactly; unknown texts hash onto distinct axes.
type embedderFake struct {
	dim           int
	vectorsByText map[string][]float32
	err           error
	failSubstring string

	mu          sync.Mutex
	calls       int
	nextAxis    int
	inFlight    int32
	maxInFlight int32
}

func newEmbedderFake(dim int) *embedderFake {
	return &embedderFake{
		dim:           dim,
		vectorsByText: map[string][]float32{},
	}
}

func (f *embedderFake) Dimension() int { return f.dim }

func (f *embedderFake) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, current) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if f.failSubstring != "" && strings.Contains(text, f.failSubstring) {
			return nil, fmt.Errorf("provider rejected %q", text)
		}
		out = append(out, f.vectorFor(text))
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *embedderFake) vectorFor(text string) []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vectorsByText[text]; ok {
		return v
	}
	v := make([]float32, f.dim)
	v[f.nextAxis%f.dim] = 1
	f.nextAxis++
	f.vectorsByText[text] = v
	return v
}

// indexFake is an in-memory vector index tracking call counts.
type indexFake struct {
	mu          sync.Mutex
	docs        []domain.IndexedDocument
	searchCalls int
	countCalls  int
	addErr      error
	searchErr   error
}

func (f *indexFake) AddDocuments(_ context.Context, docs []domain.IndexedDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.docs = append(f.docs, docs...)
	return nil
}

func (f *indexFake) SimilaritySearch(_ context.Context, queryVector []float32, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	out := make([]domain.ScoredChunk, 0, len(f.docs))
	for _, doc := range f.docs {
		if filter.SourceDocumentID != "" && doc.Chunk.SourceDocumentID != filter.SourceDocumentID {
			continue
		}
		out = append(out, domain.ScoredChunk{
			Chunk:  doc.Chunk,
			Score:  domain.CosineSimilarity(queryVector, doc.Vector),
			Vector: doc.Vector,
		})
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Score > out[i].Score {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (f *indexFake) SampleVectors(_ context.Context, limit int) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]float32, 0, limit)
	for _, doc := range f.docs {
		if len(out) == limit {
			break
		}
		out = append(out, doc.Vector)
	}
	return out, nil
}

func (f *indexFake) StoredVector(_ context.Context, content string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.Chunk.Text == content {
			return doc.Vector, nil
		}
	}
	return nil, nil
}

func (f *indexFake) DeleteBySource(_ context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.docs[:0]
	for _, doc := range f.docs {
		if doc.Chunk.SourceDocumentID != sourceID {
			kept = append(kept, doc)
		}
	}
	f.docs = kept
	return nil
}

func (f *indexFake) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = nil
	return nil
}

func (f *indexFake) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return len(f.docs), nil
}

// cacheFake is a TTL-less in-memory result cache with an adjustable miss
// switch for expiry scenarios.
type cacheFake struct {
	mu      sync.Mutex
	entries map[string][]byte
	expired bool
	getErr  error
	sets    int
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: map[string][]byte{}}
}

func (f *cacheFake) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	if f.expired {
		return nil, false, nil
	}
	v, ok := f.entries[key]
	return v, ok, nil
}

func (f *cacheFake) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[key] = value
	return nil
}

func (f *cacheFake) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = map[string][]byte{}
	return nil
}
