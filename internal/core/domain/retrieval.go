package domain

// SearchFilter narrows candidate fetch to a single source document. The zero
// value matches the whole corpus.
type SearchFilter struct {
	SourceDocumentID string `json:"source_document_id,omitempty"`
}

// Signature returns a stable representation of the filter for cache keys.
func (f SearchFilter) Signature() string {
	if f.SourceDocumentID == "" {
		return "*"
	}
	return "src=" + f.SourceDocumentID
}

// ScoredChunk is one retrieval candidate. Vector is carried so the
// diversification step can measure pairwise similarity; it is dropped before
// the result is returned to callers.
type ScoredChunk struct {
	Chunk    Chunk             `json:"chunk"`
	Score    float64           `json:"score"`
	Vector   []float32         `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Retrieval is the full answer of the retrieval coordinator: the gating
// decision, the ranked surviving chunks, and the formatted context string for
// the generation layer.
type Retrieval struct {
	Decision GatingDecision `json:"decision"`
	Results  []ScoredChunk  `json:"results"`
	Context  string         `json:"context"`
}

// CachedRetrieval is the value stored in the result cache. Generation stamps
// the corpus state at store time; entries from an older generation are misses.
type CachedRetrieval struct {
	Generation uint64        `json:"generation"`
	Results    []ScoredChunk `json:"results"`
}
