package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docchat-ai/retrieval/internal/core/domain"
	"github.com/docchat-ai/retrieval/internal/observability/metrics"
)

type ingestorFake struct {
	summary    domain.IngestSummary
	err        error
	gotChunks  []domain.Chunk
	deletedID  string
	clearCalls int
}

func (f *ingestorFake) Ingest(_ context.Context, chunks []domain.Chunk) (domain.IngestSummary, error) {
	f.gotChunks = chunks
	return f.summary, f.err
}

func (f *ingestorFake) DeleteSource(_ context.Context, sourceID string) error {
	f.deletedID = sourceID
	return f.err
}

func (f *ingestorFake) ClearCorpus(context.Context) error {
	f.clearCalls++
	return f.err
}

type retrieverFake struct {
	retrieval domain.Retrieval
	err       error
	gotQuery  string
	gotK      int
	gotFilter domain.SearchFilter
}

func (f *retrieverFake) Retrieve(
	_ context.Context,
	query string,
	k int,
	filter domain.SearchFilter,
) (domain.Retrieval, error) {
	f.gotQuery = query
	f.gotK = k
	f.gotFilter = filter
	return f.retrieval, f.err
}

type statusFake struct {
	counts domain.CorpusCounts
	err    error
}

func (f *statusFake) Counts(context.Context) (domain.CorpusCounts, error) {
	return f.counts, f.err
}

type routerFixture struct {
	ingestor  *ingestorFake
	retriever *retrieverFake
	status    *statusFake
	handler   http.Handler
}

func newRouterFixture(t *testing.T, opts Options) *routerFixture {
	t.Helper()
	f := &routerFixture{
		ingestor:  &ingestorFake{},
		retriever: &retrieverFake{},
		status:    &statusFake{},
	}
	router := NewRouter(f.ingestor, f.retriever, f.status, metrics.NewServerMetrics("test"), opts)
	f.handler = router.Handler()
	return f
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, Options{})
	res := doJSON(t, f.handler, http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
}

func TestIngestChunks(t *testing.T) {
	f := newRouterFixture(t, Options{})
	f.ingestor.summary = domain.IngestSummary{Added: 2, SkippedDuplicates: 1}

	res := doJSON(t, f.handler, http.MethodPost, "/v1/chunks", map[string]any{
		"chunks": []map[string]any{
			{"id": "c-1", "text": "alpha", "source_document_id": "doc-1"},
			{"id": "c-2", "text": "beta", "source_document_id": "doc-1"},
		},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if len(f.ingestor.gotChunks) != 2 || f.ingestor.gotChunks[0].ID != "c-1" {
		t.Fatalf("chunks not forwarded: %+v", f.ingestor.gotChunks)
	}

	var summary domain.IngestSummary
	if err := json.Unmarshal(res.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if summary.Added != 2 || summary.SkippedDuplicates != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestIngestChunksRejectsEmptyBody(t *testing.T) {
	f := newRouterFixture(t, Options{})
	res := doJSON(t, f.handler, http.MethodPost, "/v1/chunks", map[string]any{"chunks": []any{}})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestRetrieve(t *testing.T) {
	f := newRouterFixture(t, Options{})
	f.retriever.retrieval = domain.Retrieval{
		Decision: domain.GatingDecision{Allowed: true, Reason: domain.ReasonSemanticMatch, Similarity: 0.8},
		Results: []domain.ScoredChunk{
			{Chunk: domain.Chunk{ID: "c-1", Text: "alpha"}, Score: 0.9},
		},
		Context: "[source: doc-1, page 1]\nalpha",
	}

	res := doJSON(t, f.handler, http.MethodPost, "/v1/retrieve", map[string]any{
		"query":  "how does indexing work",
		"k":      3,
		"filter": map[string]any{"source_document_id": "doc-1"},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if f.retriever.gotQuery != "how does indexing work" || f.retriever.gotK != 3 {
		t.Fatalf("request not forwarded: %q k=%d", f.retriever.gotQuery, f.retriever.gotK)
	}
	if f.retriever.gotFilter.SourceDocumentID != "doc-1" {
		t.Fatalf("filter not forwarded: %+v", f.retriever.gotFilter)
	}

	var retrieval domain.Retrieval
	if err := json.Unmarshal(res.Body.Bytes(), &retrieval); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !retrieval.Decision.Allowed || len(retrieval.Results) != 1 {
		t.Fatalf("retrieval = %+v", retrieval)
	}
}

func TestRetrieveRequiresQuery(t *testing.T) {
	f := newRouterFixture(t, Options{})
	res := doJSON(t, f.handler, http.MethodPost, "/v1/retrieve", map[string]any{"query": "  "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestRetrieveMapsErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "op", errors.New("bad")), http.StatusBadRequest},
		{"temporary", domain.WrapError(domain.ErrTemporary, "op", errors.New("busy")), http.StatusServiceUnavailable},
		{"index down", domain.WrapError(domain.ErrIndexUnavailable, "op", errors.New("refused")), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, Options{})
			f.retriever.err = tt.err
			res := doJSON(t, f.handler, http.MethodPost, "/v1/retrieve", map[string]any{"query": "real question"})
			if res.Code != tt.want {
				t.Fatalf("status = %d, want %d", res.Code, tt.want)
			}
		})
	}
}

func TestDeleteSource(t *testing.T) {
	f := newRouterFixture(t, Options{})
	res := doJSON(t, f.handler, http.MethodDelete, "/v1/sources/doc-7", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if f.ingestor.deletedID != "doc-7" {
		t.Fatalf("deleted id = %q, want doc-7", f.ingestor.deletedID)
	}
}

func TestDeleteSourceRequiresID(t *testing.T) {
	f := newRouterFixture(t, Options{})
	res := doJSON(t, f.handler, http.MethodDelete, "/v1/sources/", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestClearCorpus(t *testing.T) {
	f := newRouterFixture(t, Options{})
	res := doJSON(t, f.handler, http.MethodPost, "/v1/corpus/clear", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if f.ingestor.clearCalls != 1 {
		t.Fatalf("clear calls = %d, want 1", f.ingestor.clearCalls)
	}
}

func TestCorpusStatus(t *testing.T) {
	f := newRouterFixture(t, Options{})
	f.status.counts = domain.CorpusCounts{DocumentCount: 4, VectorCount: 120}

	res := doJSON(t, f.handler, http.MethodGet, "/v1/status", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var counts domain.CorpusCounts
	if err := json.Unmarshal(res.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if counts.DocumentCount != 4 || counts.VectorCount != 120 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t, Options{})
	res := doJSON(t, f.handler, http.MethodGet, "/v1/retrieve", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", res.Code)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	f := newRouterFixture(t, Options{})
	res := doJSON(t, f.handler, http.MethodGet, "/healthz", nil)
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing %s header", requestIDHeader)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	f := newRouterFixture(t, Options{RateLimitRPS: 1, RateLimitBurst: 1})

	res1 := doJSON(t, f.handler, http.MethodGet, "/healthz", nil)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}
	res2 := doJSON(t, f.handler, http.MethodGet, "/healthz", nil)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}
