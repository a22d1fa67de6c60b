package provider

import (
	"context"
	"fmt"

	"github.com/aicooking/recipegen/config"
	openai_provider "github.com/aicooking/recipegen/provider/openai"
)

// Message is one turn of a completion conversation.
type Message = openai_provider.Message

// CompletionRequest describes a chat completion call. JSONMode is a hint to
// the upstream model to emit syntactically valid JSON; the provider does not
// parse or validate the response.
type CompletionRequest = openai_provider.CompletionRequest

// ProviderError wraps any upstream model failure (network, auth, rate limit)
// as a single opaque kind.
type ProviderError = openai_provider.ProviderError

// Provider is the capability surface the pipeline needs from a model backend.
// The embedding dimension is not validated here; the chunk store owns that
// invariant.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	GenerateImage(ctx context.Context, prompt, size, quality string) (string, error)
}

// New creates a provider from configuration.
func New(cfg config.OpenAIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	return openai_provider.NewClient(cfg), nil
}
