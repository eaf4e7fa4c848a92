package llm

import (
	"os"
	"strings"
)

// Provider identifies an LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
)

// ParseModelString parses a model string into provider and model name.
//
// Supported formats:
//
//	"ollama/llama3.2"          → (ollama, "llama3.2")
//	"openai/gpt-4o"            → (openai, "gpt-4o")
//	"claude-sonnet-4-20250514" → (anthropic, "claude-sonnet-4-20250514")
//	"gpt-4o"                   → (openai, "gpt-4o")
//	"llama3.2"                 → (openai, "llama3.2")
func ParseModelString(model string) (Provider, string) {
	if i := strings.Index(model, "/"); i > 0 {
		prefix := strings.ToLower(model[:i])
		name := model[i+1:]
		switch prefix {
		case "ollama":
			return ProviderOllama, name
		case "openai":
			return ProviderOpenAI, name
		case "anthropic":
			return ProviderAnthropic, name
		}
	}

	lower := strings.ToLower(model)
	if strings.HasPrefix(lower, "claude") {
		return ProviderAnthropic, model
	}
	if os.Getenv("OLLAMA_HOST") != "" && !strings.HasPrefix(lower, "gpt-") {
		return ProviderOllama, model
	}
	return ProviderOpenAI, model
}

// ClientConfig carries provider credentials. Empty fields fall back to the
// provider's usual environment variables.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// NewClientForModel creates the appropriate LLM client based on the model string.
//
// Environment variables used:
//
//	ANTHROPIC_API_KEY	Anthropic API key (read by SDK automatically)
//	OPENAI_API_KEY	OpenAI API key (read by SDK automatically)
//	OPENAI_BASE_URL	Custom OpenAI-compatible base URL
//	OLLAMA_HOST	Ollama server address (default: http://localhost:11434)
func NewClientForModel(model string, cfg ClientConfig) (Client, string) {
	provider, modelName := ParseModelString(model)

	switch provider {
	case ProviderOllama:
		return NewOllamaClient(os.Getenv("OLLAMA_HOST")), modelName
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey), modelName
	default:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		return NewOpenAIClient(baseURL, cfg.APIKey), modelName
	}
}
