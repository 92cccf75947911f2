package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Local talks to an OpenAI-compatible server on the machine: LM Studio, or
// Ollama through its /v1 endpoint. No auth header is sent.
type Local struct {
	provider   string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewLocal creates a Local engine for provider at baseURL.
func NewLocal(provider, baseURL, model string, timeout time.Duration) *Local {
	return &Local{
		provider:   provider,
		baseURL:    trimBase(baseURL),
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

func (l *Local) Name() string {
	return l.provider
}

func (l *Local) Complete(ctx context.Context, prompt string) (string, error) {
	return chatCall(ctx, l.httpClient, l.provider, l.baseURL+"/chat/completions", l.timeout, nil, chatRequest{
		Model:       l.model,
		Messages:    conversation(prompt),
		Temperature: 0.7,
		MaxTokens:   2048,
		TopP:        0.8,
		TopK:        20,
	})
}

// IsRunning reports whether the server answers GET /models.
func (l *Local) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the model IDs the server has loaded.
func (l *Local) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting model list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	names := make([]string, len(list.Data))
	for i, m := range list.Data {
		names[i] = m.ID
	}
	return names, nil
}
