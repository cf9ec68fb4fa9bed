package ai

import (
	"context"
	"strings"

	"github.com/suPer8Hu/ai-component-studio/internal/config"
)

const (
	defaultOpenRouterModel = "openai/gpt-4o-mini"
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultOllamaModel     = "llama3:latest"
)

// RegisterDefaults wires the three supported backends from cfg.
// An empty model at lookup time falls back to AI_MODEL, then the backend default.
func RegisterDefaults(reg *Registry, cfg config.Config) {
	opts := Options{MaxTokens: cfg.AIMaxTokens, Temperature: cfg.AITemperature}
	pick := func(model, def string) string {
		if m := strings.TrimSpace(model); m != "" {
			return m
		}
		if cfg.AIModel != "" {
			return cfg.AIModel
		}
		return def
	}

	reg.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, pick(model, defaultOpenRouterModel),
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName, cfg.AITimeout, opts), nil
	})

	reg.Register("openai", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   pick(model, defaultOpenAIModel),
			Timeout: cfg.AITimeout,
			Opts:    opts,
		}), nil
	})

	reg.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOllamaProvider(cfg.OllamaBaseURL, pick(model, defaultOllamaModel), cfg.AITimeout, opts), nil
	})
}
