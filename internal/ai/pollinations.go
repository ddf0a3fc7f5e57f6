package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const pollinationsURL = "https://text.pollinations.ai/openai"

// PollinationsProvider uses the keyless Pollinations text endpoint.
type PollinationsProvider struct {
	URL    string
	client *http.Client
}

func NewPollinationsProvider(timeout time.Duration) *PollinationsProvider {
	if timeout == 0 {
		timeout = 25 * time.Second
	}
	return &PollinationsProvider{
		URL:    pollinationsURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *PollinationsProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	payload := map[string]any{
		"model":       "openai",
		"messages":    messages,
		"temperature": 1,
		"private":     true,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pollinations: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Provider: "pollinations", Code: resp.StatusCode, Body: truncate(body)}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return "", errors.New("pollinations returned html")
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("pollinations decode: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", errors.New("pollinations empty choices")
	}

	reply := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if isGarbageResponse(reply) {
		return "", errors.New("pollinations returned garbage")
	}

	return reply, nil
}
