// Package llm holds the completion clients used to draft PRD markdown.
// Providers are plain net/http clients; the endpoint URLs are package
// vars so tests can point them at httptest servers.
package llm

import (
	"context"
	"net/http"
	"time"

	dErrors "ralphbot/pkg/domain-errors"
)

// sharedHTTPClient is used by all providers; the generous timeout covers
// slow completions.
var sharedHTTPClient = &http.Client{
	Timeout: 2 * time.Minute,
}

const defaultMaxTokens = 4096

// Request holds the parameters for a completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Response holds the result of a completion call.
type Response struct {
	Content string
	Model   string
}

// Provider is a completion backend.
//
//go:generate mockgen -source=provider.go -destination=mocks/provider.go -package=mocks
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// New returns the provider for the given name, or nil when name is
// empty (the caller falls back to the deterministic template).
func New(name, apiKey, model string) (Provider, error) {
	switch name {
	case "":
		return nil, nil
	case "anthropic":
		if apiKey == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "anthropic provider requires an API key")
		}
		if model == "" {
			model = defaultAnthropicModel
		}
		return &anthropicProvider{model: model, apiKey: apiKey}, nil
	case "openai":
		if apiKey == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "openai provider requires an API key")
		}
		if model == "" {
			model = defaultOpenAIModel
		}
		return &openaiProvider{model: model, apiKey: apiKey}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown llm provider %q: supported providers are anthropic, openai", name)
	}
}

// truncate limits a string to maxLen runes for error messages.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
