package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/keshon/heartline/pkg/retrylimit"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

func defaultLimiter() *retrylimit.Limiter {
	return retrylimit.NewLimiter(2, 1, 5, 1, 0.5)
}

func retryConfig(attempts int, log zerolog.Logger) retrylimit.Config {
	cfg := retrylimit.DefaultConfig()
	if attempts < 1 {
		attempts = 1
	}
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 8 * time.Second
	cfg.Log = log
	return cfg
}

// Retrying retries transient provider failures. Client errors (4xx other
// than 429) and cancellation stop immediately.
type Retrying struct {
	next Provider
	cfg  retrylimit.Config
	lim  *retrylimit.Limiter
}

func NewRetrying(next Provider, cfg retrylimit.Config, lim *retrylimit.Limiter) *Retrying {
	return &Retrying{next: next, cfg: cfg, lim: lim}
}

func (r *Retrying) Generate(ctx context.Context, messages []Message) (string, error) {
	var out string
	err := retrylimit.Do(ctx, r.lim, r.cfg, func() error {
		reply, err := r.next.Generate(ctx, messages)
		if err != nil {
			return classify(ctx, err)
		}
		out = reply
		return nil
	})
	return out, err
}

type RetryingEmbedder struct {
	next Embedder
	cfg  retrylimit.Config
	lim  *retrylimit.Limiter
}

func NewRetryingEmbedder(next Embedder, cfg retrylimit.Config, lim *retrylimit.Limiter) *RetryingEmbedder {
	return &RetryingEmbedder{next: next, cfg: cfg, lim: lim}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := retrylimit.Do(ctx, r.lim, r.cfg, func() error {
		v, err := r.next.Embed(ctx, text)
		if err != nil {
			return classify(ctx, err)
		}
		out = v
		return nil
	})
	return out, err
}

// classify maps provider errors onto the retry package's vocabulary.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return retrylimit.Fatal(err)
	}

	code := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var httpErr retrylimit.StatusCoder
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	case errors.As(err, &httpErr):
		code = httpErr.StatusCode()
	}

	switch {
	case code == 0:
		return err
	case code == http.StatusTooManyRequests || code >= 500:
		return &StatusError{Provider: "upstream", Code: code, Err: err}
	case code >= 400:
		return retrylimit.Fatal(err)
	default:
		return err
	}
}
