package ai

import (
	"context"
	"fmt"

	"github.com/keshon/heartline/internal/config"
	"github.com/rs/zerolog"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Embedder turns text into a vector. A nil vector with a nil error means
// embeddings are unavailable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// New builds the completion provider named by AI_PROVIDER, wrapped with retries.
func New(cfg *config.Config, log zerolog.Logger) (Provider, error) {
	log = log.With().Str("component", "ai").Logger()

	var p Provider
	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for AI_PROVIDER=openai")
		}
		p = NewOpenAIProvider(OpenAIConfig{
			APIKey:      cfg.OpenAIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.AITimeout,
		})
	case "pollinations":
		p = NewPollinationsProvider(cfg.AITimeout)
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER: %s", cfg.AIProvider)
	}

	log.Info().Str("action", "provider").Str("provider", cfg.AIProvider).Str("model", cfg.Model).Msg("completion provider ready")
	return NewRetrying(p, retryConfig(cfg.AIRetries, log), defaultLimiter()), nil
}

// NewEmbedder returns the configured embedder, or NoopEmbedder when
// embeddings are disabled.
func NewEmbedder(cfg *config.Config, log zerolog.Logger) Embedder {
	if !cfg.EmbeddingsEnabled() {
		return NoopEmbedder{}
	}
	e := NewOpenAIEmbedder(OpenAIEmbedderConfig{
		APIKey:  cfg.EmbeddingKey,
		BaseURL: cfg.EmbeddingURL,
		Model:   cfg.EmbeddingModel,
		Timeout: cfg.AITimeout,
	})
	log = log.With().Str("component", "ai").Logger()
	return NewRetryingEmbedder(e, retryConfig(cfg.AIRetries, log), defaultLimiter())
}
