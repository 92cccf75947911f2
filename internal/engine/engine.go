package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SystemPersona is the system message sent ahead of every prompt.
const SystemPersona = "You are a helpful ServiceNow developer assistant."

// Engine abstracts a chat-completion backend. The batch runner depends on
// this interface instead of a concrete client.
type Engine interface {
	// Complete sends prompt as the user turn and returns the first
	// completion's text. Failures are *GatewayError.
	Complete(ctx context.Context, prompt string) (string, error)

	// Name identifies the backend in logs and the run ledger.
	Name() string
}

// GatewayError wraps any transport, status or decoding failure of a backend
// call. Status is 0 when no HTTP response was received.
type GatewayError struct {
	Backend string
	Message string
	Status  int
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Backend, e.Message, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a gateway call that ran out of time.
func IsTimeout(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && errors.Is(ge.Err, context.DeadlineExceeded)
}

// Settings selects and configures a backend.
type Settings struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	// Timeout bounds each Complete call; zero disables it.
	Timeout time.Duration
}

// New resolves the backend once for a run.
func New(s Settings) (Engine, error) {
	switch s.Provider {
	case "lmstudio", "ollama":
		return NewLocal(s.Provider, s.BaseURL, s.Model, s.Timeout), nil
	case "openrouter":
		if s.APIKey == "" {
			return nil, errors.New("openrouter: API key is required")
		}
		or := NewOpenRouter(s.APIKey, s.Model, s.Timeout)
		if s.BaseURL != "" {
			or.baseURL = trimBase(s.BaseURL)
		}
		return or, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", s.Provider)
	}
}
