package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docchat-ai/retrieval/internal/core/domain"
	"github.com/docchat-ai/retrieval/internal/core/ports"
)

// Config holds the connection settings of the index adapter.
type Config struct {
	BaseURL    string
	Collection string
	Dimension  int
	// Embedder recomputes vectors for stored points whose persisted vector
	// cannot be normalized to the configured dimension. Optional.
	Embedder ports.EmbeddingProvider
	Logger   *slog.Logger
	Timeout  time.Duration
}

// Client stores and searches embeddings in a Qdrant collection over HTTP.
type Client struct {
	baseURL    string
	collection string
	dimension  int
	embedder   ports.EmbeddingProvider
	logger     *slog.Logger
	httpClient *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		embedder:   cfg.Embedder,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Init verifies the persisted collection against the configured dimension.
// A mismatched collection is backed up (snapshot) and recreated empty rather
// than operated on silently; stale indices are common after switching
// embedding providers.
func (c *Client) Init(ctx context.Context) error {
	size, exists, err := c.collectionVectorSize(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return c.createCollection(ctx)
	}
	if size == c.dimension {
		return nil
	}

	c.logger.Warn("vector index dimension mismatch, backing up and reinitializing",
		"collection", c.collection,
		"stored_dimension", size,
		"configured_dimension", c.dimension,
	)
	if err := c.snapshotCollection(ctx); err != nil {
		c.logger.Warn("collection backup snapshot failed", "collection", c.collection, "error", err)
	}
	if err := c.dropCollection(ctx); err != nil {
		return err
	}
	return c.createCollection(ctx)
}

func (c *Client) AddDocuments(ctx context.Context, docs []domain.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(docs))
	for _, doc := range docs {
		if err := domain.CheckDimension(doc.Vector, c.dimension); err != nil {
			return fmt.Errorf("chunk %s: %w", doc.Chunk.ID, err)
		}
		payload := map[string]any{
			"chunk_id":    doc.Chunk.ID,
			"text":        doc.Chunk.Text,
			"source_id":   doc.Chunk.SourceDocumentID,
			"page_number": doc.Chunk.PageNumber,
			"position":    doc.Chunk.Position,
		}
		for k, v := range doc.Metadata {
			payload["meta_"+k] = v
		}
		points = append(points, point{
			ID:      uuid.NewString(),
			Vector:  doc.Vector,
			Payload: payload,
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.call(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert points")
}

func (c *Client) SimilaritySearch(
	ctx context.Context,
	queryVector []float32,
	k int,
	filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	if err := domain.CheckDimension(queryVector, c.dimension); err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  true,
	}
	if f := sourceFilter(filter.SourceDocumentID); f != nil {
		reqBody["filter"] = f
	}

	var resp struct {
		Result []storedPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.call(ctx, http.MethodPost, path, reqBody, &resp, "search points"); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, domain.ScoredChunk{
			Chunk:  chunkFromPayload(p.Payload),
			Score:  p.Score,
			Vector: c.normalizeVector(ctx, p),
		})
	}
	return out, nil
}

func (c *Client) SampleVectors(ctx context.Context, limit int) ([][]float32, error) {
	points, err := c.scroll(ctx, limit, nil)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(points))
	for _, p := range points {
		if v := c.normalizeVector(ctx, p); v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *Client) StoredVector(ctx context.Context, content string) ([]float32, error) {
	points, err := c.scroll(ctx, 1, map[string]any{
		"must": []map[string]any{
			{"key": "text", "match": map[string]any{"value": content}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	return c.normalizeVector(ctx, points[0]), nil
}

func (c *Client) DeleteBySource(ctx context.Context, sourceID string) error {
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	reqBody := map[string]any{"filter": sourceFilter(sourceID)}
	return c.call(ctx, http.MethodPost, path, reqBody, nil, "delete points by source")
}

func (c *Client) Clear(ctx context.Context) error {
	if err := c.dropCollection(ctx); err != nil {
		return err
	}
	return c.createCollection(ctx)
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.collection)
	if err := c.call(ctx, http.MethodPost, path, map[string]any{"exact": true}, &resp, "count points"); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// normalizeVector extracts the stored vector through the known wire shapes and
// falls back to a fresh embedding of the payload text; a search never fails on
// an unreadable stored vector.
func (c *Client) normalizeVector(ctx context.Context, p storedPoint) []float32 {
	if v := extractVector(p); v != nil && len(v) == c.dimension {
		return v
	}
	if c.embedder == nil {
		return nil
	}
	text := getStringPayload(p.Payload, "text")
	if text == "" {
		return nil
	}
	vectors, err := c.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil || len(vectors) == 0 {
		c.logger.Warn("fallback re-embedding of stored point failed", "error", err)
		return nil
	}
	return vectors[0]
}

func (c *Client) scroll(ctx context.Context, limit int, filter map[string]any) ([]storedPoint, error) {
	reqBody := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}
	if filter != nil {
		reqBody["filter"] = filter
	}

	var resp struct {
		Result struct {
			Points []storedPoint `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
	if err := c.call(ctx, http.MethodPost, path, reqBody, &resp, "scroll points"); err != nil {
		return nil, err
	}
	return resp.Result.Points, nil
}

func (c *Client) collectionVectorSize(ctx context.Context) (size int, exists bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/collections/"+c.collection, nil)
	if err != nil {
		return 0, false, fmt.Errorf("create collection info request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, domain.WrapError(domain.ErrIndexUnavailable, "get collection info", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode >= 300 {
		return 0, false, statusError("get collection info", resp)
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors json.RawMessage `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, false, fmt.Errorf("decode collection info: %w", err)
	}
	return vectorParamsSize(info.Result.Config.Params.Vectors), true, nil
}

func (c *Client) createCollection(ctx context.Context) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     c.dimension,
			"distance": "Cosine",
		},
	}
	err := c.call(ctx, http.MethodPut, "/collections/"+c.collection, reqBody, nil, "create collection")
	if err != nil && strings.Contains(err.Error(), "409") {
		return nil
	}
	return err
}

func (c *Client) dropCollection(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/collections/"+c.collection, nil, nil, "drop collection")
}

func (c *Client) snapshotCollection(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s/snapshots", c.collection)
	return c.call(ctx, http.MethodPost, path, nil, nil, "snapshot collection")
}

func (c *Client) call(ctx context.Context, method, path string, reqBody any, out any, operation string) error {
	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}

func statusError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
	}
	return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
}

func sourceFilter(sourceID string) map[string]any {
	if sourceID == "" {
		return nil
	}
	return map[string]any{
		"must": []map[string]any{
			{"key": "source_id", "match": map[string]any{"value": sourceID}},
		},
	}
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	return domain.Chunk{
		ID:               getStringPayload(payload, "chunk_id"),
		Text:             getStringPayload(payload, "text"),
		SourceDocumentID: getStringPayload(payload, "source_id"),
		PageNumber:       getIntPayload(payload, "page_number"),
		Position:         getIntPayload(payload, "position"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
