package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docchat-ai/retrieval/internal/core/domain"
	"github.com/docchat-ai/retrieval/internal/infrastructure/embedding"
)

// Config holds the settings of an OpenAI-compatible embedding endpoint.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	User      string
}

// Provider computes embeddings through the OpenAI embeddings API or any
// compatible endpoint.
type Provider struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
	user      string
}

func New(cfg Config) *Provider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     openai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
		user:      cfg.User,
	}
}

func (p *Provider) Dimension() int {
	return p.dimension
}

func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          p.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           p.user,
	}
	if p.dimension > 0 {
		req.Dimensions = p.dimension
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed documents", normalizeAPIError(err))
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed documents",
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, domain.WrapError(domain.ErrEmbedding, "embed documents",
				fmt.Errorf("embedding index %d out of range", item.Index))
		}
		if err := domain.CheckDimension(item.Embedding, p.dimension); err != nil {
			return nil, err
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

// normalizeAPIError converts go-openai error types into the shared status
// error so retry classification sees the HTTP status.
func normalizeAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &embedding.HTTPStatusError{
			Operation:  "embed",
			StatusCode: reqErr.HTTPStatusCode,
			Status:     fmt.Sprintf("%d", reqErr.HTTPStatusCode),
			Body:       string(reqErr.Body),
		}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &embedding.HTTPStatusError{
			Operation:  "embed",
			StatusCode: apiErr.HTTPStatusCode,
			Status:     fmt.Sprintf("%d", apiErr.HTTPStatusCode),
			Body:       apiErr.Message,
		}
	}
	return err
}
