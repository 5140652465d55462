package llm

// Provider identifies the upstream serving a model.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
)

// Model describes a selectable model. The set is static and not persisted.
type Model struct {
	ID          string
	Name        string
	Description string
	Provider    Provider
}

var models = []*Model{
	{
		ID:          "claude-sonnet-4-5",
		Name:        "Claude 4.5 Sonnet",
		Description: "Anthropic's balanced flagship model",
		Provider:    ProviderAnthropic,
	},
	{
		ID:          "gpt-5-mini",
		Name:        "GPT-5 Mini",
		Description: "Fast, inexpensive OpenAI model",
		Provider:    ProviderOpenAI,
	},
	{
		ID:          "gpt-4o",
		Name:        "GPT-4o",
		Description: "OpenAI's multimodal model",
		Provider:    ProviderOpenAI,
	},
	{
		ID:          "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		Name:        "Claude 4.5 Sonnet (Bedrock)",
		Description: "Claude 4.5 Sonnet served through OpenRouter",
		Provider:    ProviderOpenRouter,
	},
}

// DefaultModel is used when a request omits the model or names an unknown one.
var DefaultModel = models[0]

// AvailableModels returns the selectable models.
func AvailableModels() []*Model {
	return models
}

// Resolve maps a model id to its descriptor, falling back to DefaultModel for
// empty or unrecognized ids.
func Resolve(id string) *Model {
	for _, model := range models {
		if model.ID == id {
			return model
		}
	}
	return DefaultModel
}
