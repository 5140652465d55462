package llm

import (
	"context"
	"fmt"
)

// Config carries provider credentials.
type Config struct {
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	OpenAIAPIHost     string
	OpenRouterAPIKey  string
	OpenRouterAPIHost string
}

type client struct {
	anthropic  *anthropicClient
	openai     *openaiClient
	openrouter *openaiClient
}

// NewClient builds a Client that routes requests to the provider of the
// requested model.
func NewClient(cfg *Config) Client {
	return &client{
		anthropic:  newAnthropicClient(cfg.AnthropicAPIKey),
		openai:     newOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIAPIHost),
		openrouter: newOpenAIClient(cfg.OpenRouterAPIKey, cfg.OpenRouterAPIHost),
	}
}

func (c *client) GenerateStream(ctx context.Context, request *GenerateRequest) (Stream, error) {
	if request.Model == nil {
		request.Model = DefaultModel
	}
	if request.MaxSteps <= 0 {
		request.MaxSteps = 1
	}

	switch request.Model.Provider {
	case ProviderAnthropic:
		return c.anthropic.generateStream(ctx, request)
	case ProviderOpenAI:
		return c.openai.generateStream(ctx, request)
	case ProviderOpenRouter:
		return c.openrouter.generateStream(ctx, request)
	default:
		return nil, fmt.Errorf("unknown provider (%s)", request.Model.Provider)
	}
}
