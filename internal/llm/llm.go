// Package llm provides a provider-neutral chat completion client used by
// the history summarizer. The provider is chosen at runtime from a
// "provider/model_name" config string.
package llm

import (
	"context"
	"fmt"
	"strings"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message, opts ...CompleteOption) (string, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// CompleteOption adjusts a single completion call.
type CompleteOption func(*completeOptions)

type completeOptions struct {
	temperature *float32
	maxTokens   int
}

// WithTemperature pins the sampling temperature. The summarizer runs at 0
// so repeated runs over the same history produce the same digest.
func WithTemperature(t float32) CompleteOption {
	return func(o *completeOptions) {
		o.temperature = &t
	}
}

// WithMaxTokens caps the response length. Providers that require an
// explicit cap (anthropic) fall back to a default when unset.
func WithMaxTokens(n int) CompleteOption {
	return func(o *completeOptions) {
		o.maxTokens = n
	}
}

func applyCompleteOptions(opts []CompleteOption) completeOptions {
	var o completeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}
