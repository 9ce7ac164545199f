package domain

// Chunk is a bounded span of source-document text produced by the external
// chunker. It is the unit of indexing and retrieval.
type Chunk struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	SourceDocumentID string `json:"source_document_id"`
	PageNumber       int    `json:"page_number"`
	Position         int    `json:"position"`
}

// IndexedDocument is a chunk paired with its embedding, as persisted in the
// vector index.
type IndexedDocument struct {
	Chunk    Chunk             `json:"chunk"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestSummary reports the outcome of one ingestion call. Batch failures are
// collected here instead of aborting sibling batches.
type IngestSummary struct {
	Added             int      `json:"added"`
	SkippedDuplicates int      `json:"skipped_duplicates"`
	FailedBatches     int      `json:"failed_batches"`
	Errors            []string `json:"errors,omitempty"`
}

// CorpusCounts backs the administrative status endpoint.
type CorpusCounts struct {
	DocumentCount int `json:"document_count"`
	VectorCount   int `json:"vector_count"`
}
