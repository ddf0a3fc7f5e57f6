package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultEmbeddingModel = "text-embedding-3-small"

type OpenAIEmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. It is safe
// for concurrent use.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: no data returned")
	}
	return resp.Data[0].Embedding, nil
}

// NoopEmbedder disables semantic retrieval; memory falls back to keywords.
type NoopEmbedder struct{}

func (NoopEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

var (
	_ Embedder = (*OpenAIEmbedder)(nil)
	_ Embedder = NoopEmbedder{}
)
