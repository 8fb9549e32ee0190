package llm

import (
	"fmt"
	"strings"

	"github.com/neoclaw-ai/repcoach/internal/config"
)

const defaultMaxTokens = 150

func normalizeMaxTokens(v int) int {
	if v <= 0 {
		return defaultMaxTokens
	}
	return v
}

// Base URLs for OpenAI-compatible providers.
const (
	xaiBaseURL        = "https://api.x.ai/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	ollamaBaseURL     = "http://localhost:11434/v1"
)

// NewProviderFromConfig builds an LLM provider from the selected LLM profile.
func NewProviderFromConfig(cfg config.LLMProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "openai":
		return newOpenAIProvider(cfg, "")
	case "xai":
		return newOpenAIProvider(cfg, xaiBaseURL)
	case "openrouter":
		return newOpenAIProvider(cfg, openRouterBaseURL)
	case "ollama":
		return newOpenAIProvider(cfg, ollamaBaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
