package domain

// GatingReason explains why retrieval was allowed or skipped for a query.
type GatingReason string

const (
	ReasonSemanticMatch GatingReason = "semantic_match"
	ReasonKeywordMatch  GatingReason = "keyword_match"
	ReasonLowIntent     GatingReason = "low_intent"
	ReasonNoCorpus      GatingReason = "no_corpus"
	ReasonTooShort      GatingReason = "too_short"
	ReasonError         GatingReason = "error"
)

// GatingDecision is computed once per query and never persisted. Similarity
// is the query-centroid cosine when it was measured, zero otherwise.
type GatingDecision struct {
	Allowed    bool         `json:"allowed"`
	Reason     GatingReason `json:"reason"`
	Similarity float64      `json:"similarity,omitempty"`
}
