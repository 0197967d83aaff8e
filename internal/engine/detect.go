package engine

import (
	"context"
	"fmt"
)

// Provider names accepted by Detect.
const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider      string
	OllamaBaseURL string
	OpenAIBaseURL string
	APIKey        string
}

// Detect returns the engine for the configured provider. An empty provider
// selects Gemini when an API key is present and Ollama otherwise.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOllama
		if cfg.APIKey != "" {
			provider = ProviderGemini
		}
	}

	switch provider {
	case ProviderOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL)
	case ProviderGemini:
		return NewGeminiEngine(ctx, cfg.APIKey)
	case ProviderOpenAI:
		return NewOpenAIEngine(cfg.OpenAIBaseURL, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", provider)
	}
}
