package models

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/adk/model"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderGrok       = "grok"
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	grokBaseURL       = "https://api.x.ai/v1"
	ollamaBaseURL     = "http://localhost:11434/v1"
)

// ProviderConfig selects and configures one chat provider.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewLLM builds the model for cfg.Provider.
func NewLLM(ctx context.Context, cfg ProviderConfig) (model.LLM, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case ProviderOpenAI, "":
		return NewOpenAIModel(cfg.Model, cfg.APIKey, cfg.BaseURL)
	case ProviderOllama:
		return newOpenAICompatible(provider, cfg.Model, cfg.APIKey, orDefault(cfg.BaseURL, ollamaBaseURL))
	case ProviderOpenRouter:
		return newOpenAICompatible(provider, cfg.Model, cfg.APIKey, orDefault(cfg.BaseURL, openRouterBaseURL))
	case ProviderGrok:
		return newOpenAICompatible(provider, cfg.Model, cfg.APIKey, orDefault(cfg.BaseURL, grokBaseURL))
	case ProviderGemini:
		return NewGeminiModel(ctx, cfg.Model, cfg.APIKey)
	case ProviderAnthropic:
		return NewAnthropicModel(cfg.Model, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
