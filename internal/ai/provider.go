// Package ai wraps language-model backends to classify tickets and draft
// customer replies.
package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
)

// Request is a single-turn completion request.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Provider is a language-model backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderError is returned when a model API responds with an error.
type ProviderError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("ai/%s: HTTP %d: %s: %s", err.Provider, err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("ai/%s: HTTP %d: %s", err.Provider, err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429 response.
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Default models per provider.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o-mini"
)

// NewProvider builds the backend selected by cfg.Provider and returns the
// model name to request from it.
func NewProvider(cfg config.AIConfig, httpClient *http.Client) (Provider, string, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	switch cfg.Provider {
	case "", ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, "", fmt.Errorf("ai: ANTHROPIC_API_KEY is required for provider %q", ProviderAnthropic)
		}
		return NewAnthropic(httpClient, cfg.AnthropicBaseURL, cfg.AnthropicKey), modelOr(cfg.Model, DefaultAnthropicModel), nil
	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, "", fmt.Errorf("ai: OPENAI_API_KEY is required for provider %q", ProviderOpenAI)
		}
		return NewOpenAI(httpClient, cfg.OpenAIBaseURL, cfg.OpenAIKey), modelOr(cfg.Model, DefaultOpenAIModel), nil
	default:
		return nil, "", fmt.Errorf("ai: unknown provider %q", cfg.Provider)
	}
}

func modelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
