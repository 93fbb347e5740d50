// Package llm provides clients for the reasoning backends that analysis
// stages call. Every call carries an enforced timeout; rate limits are
// retried with backoff and credential failures surface as ErrAuth.
package llm

import (
	"context"
	"fmt"
	"time"
)

// CompleteRequest contains the prompt sent to a reasoning backend
type CompleteRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// CompleteResponse contains the raw backend response
type CompleteResponse struct {
	Content    string
	TokensUsed int
}

// Client is the reasoning backend abstraction
type Client interface {
	Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error)
	Name() string
}

// Config configures a backend client
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// New creates a client for the configured provider
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
