package embedder

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider embeds text with the Gemini API
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
	taskType  string
}

// NewGeminiProvider creates a Gemini embedder
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini requires an API key", ErrNoProviderEnabled)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = GeminiDimension
	}
	return &GeminiProvider{
		client:    client,
		model:     orDefault(cfg.Model, DefaultGeminiModel),
		dimension: dim,
		taskType:  "RETRIEVAL_DOCUMENT",
	}, nil
}

func (g *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, g, req)
}

func (g *GeminiProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(req.Texts))
	for i, text := range req.Texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}

	dim := int32(g.dimension)
	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType:             g.taskType,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, classifyGeminiError(ctx, err)
	}
	if resp == nil || len(resp.Embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("%w: unexpected embedding count", ErrProviderFailed)
	}

	embeddings := make([]*Embedding, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		embeddings[i] = &Embedding{
			Vector:    NormalizeVector(e.Values),
			Dimension: len(e.Values),
			Provider:  ProviderGemini,
			Model:     g.model,
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderGemini,
		Model:      g.model,
	}, nil
}

func classifyGeminiError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func (g *GeminiProvider) Dimension() int {
	return g.dimension
}

func (g *GeminiProvider) Provider() string {
	return ProviderGemini
}

func (g *GeminiProvider) Model() string {
	return g.model
}

func (g *GeminiProvider) Close() error {
	return nil
}
