package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`

	// LLM provider settings. Keys may be left empty and resolved from
	// Secret Manager instead (see GCPProjectID).
	AnthropicAPIKey   string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	OpenAIAPIHost     string `envconfig:"OPENAI_API_HOST" default:"https://api.openai.com/v1"`
	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterAPIHost string `envconfig:"OPENROUTER_API_HOST" default:"https://openrouter.ai/api/v1"`

	// When set, provider API keys missing from the environment are fetched
	// from GCP Secret Manager under chat-<provider>-api-key.
	GCPProjectID string `envconfig:"GCP_PROJECT_ID"`

	// Streaming settings. The thinking budget enables extended thinking on
	// providers that support it; it must be at least 1024 and below
	// LLM_MAX_TOKENS, and zero leaves it off.
	MaxToolSteps      int    `envconfig:"MAX_TOOL_STEPS" default:"3"`
	LLMMaxTokens      int    `envconfig:"LLM_MAX_TOKENS" default:"4096"`
	LLMThinkingBudget int    `envconfig:"LLM_THINKING_BUDGET" default:"0"`
	SystemPrompt      string `envconfig:"SYSTEM_PROMPT"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
