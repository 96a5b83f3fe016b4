package vectorindex

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sentinelops/gatekeep/internal/config"
)

// Embedder produces a dense vector for a piece of text. Both VectorIndex
// implementations in this package embed queries (and, for Memory, corpus
// questions) through the same client so their vectors are comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder implements Embedder against an OpenAI-compatible
// embeddings endpoint, configured from config.EmbeddingConfig.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder builds an Embedder from the gateway's embedding
// config (spec.md §6 embedding.*).
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBaseURL != "" {
		oaiCfg.BaseURL = cfg.APIBaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(oaiCfg),
		model:  cfg.ModelName,
	}
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("vectorindex: embed: empty response")
	}
	return resp.Data[0].Embedding, nil
}
