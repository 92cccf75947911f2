package engine

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"
)

const (
	defaultOpenRouterURL = "https://openrouter.ai/api/v1"
	rateLimitRetries     = 3
	initialBackoff       = 500 * time.Millisecond
)

// OpenRouter talks to the OpenRouter cloud API with a bearer key.
type OpenRouter struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	referer    string
	title      string
	httpClient *http.Client
	backoff    time.Duration
}

// NewOpenRouter creates an OpenRouter engine for model.
func NewOpenRouter(apiKey, model string, timeout time.Duration) *OpenRouter {
	return &OpenRouter{
		apiKey:     apiKey,
		baseURL:    defaultOpenRouterURL,
		model:      model,
		timeout:    timeout,
		referer:    "https://github.com/kalambet/devharvest",
		title:      "ServiceNow Documentation Crawler",
		httpClient: &http.Client{},
		backoff:    initialBackoff,
	}
}

// NewOpenRouterWithBaseURL creates an engine pointing at a custom base URL (for testing).
func NewOpenRouterWithBaseURL(apiKey, model, baseURL string) *OpenRouter {
	o := NewOpenRouter(apiKey, model, 0)
	o.baseURL = trimBase(baseURL)
	return o
}

func (o *OpenRouter) Name() string {
	return "openrouter"
}

// Complete sends prompt to OpenRouter. HTTP 429 is retried with exponential
// backoff; every other failure returns at once.
func (o *OpenRouter) Complete(ctx context.Context, prompt string) (string, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.apiKey)
	header.Set("HTTP-Referer", o.referer)
	header.Set("X-Title", o.title)
	body := chatRequest{
		Model:       o.model,
		Messages:    conversation(prompt),
		Temperature: 0.7,
		MaxTokens:   2048,
	}

	var lastErr error
	for attempt := range rateLimitRetries {
		text, err := chatCall(ctx, o.httpClient, o.Name(), o.baseURL+"/chat/completions", o.timeout, header, body)
		if err == nil {
			return text, nil
		}
		if !isRateLimit(err) {
			return "", err
		}
		lastErr = err
		if attempt < rateLimitRetries-1 {
			wait := time.Duration(float64(o.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", &GatewayError{Backend: o.Name(), Message: "waiting after rate limit", Err: ctx.Err()}
			case <-time.After(wait):
			}
		}
	}
	return "", lastErr
}

func isRateLimit(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Status == http.StatusTooManyRequests
}
