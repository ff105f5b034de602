package provider

import (
	"fmt"
	"os"
	"time"

	"webforge/internal/config"
)

// ProviderName identifies an LLM provider.
type ProviderName string

const (
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderOpenAI     ProviderName = "openai"
	ProviderOpenRouter ProviderName = "openrouter"
)

// Resolved holds the provider and API key chosen for a session.
type Resolved struct {
	Provider ProviderName
	APIKey   string
	Model    string // Optional model override
}

// Resolve picks a provider from config, falling back to environment
// variables in priority order ANTHROPIC > OPENAI > OPENROUTER.
func Resolve(cfg config.LLMConfig) (*Resolved, error) {
	if cfg.DefaultProvider != "" {
		name := ProviderName(cfg.DefaultProvider)
		key := keyFor(name, cfg)
		if key != "" {
			return &Resolved{Provider: name, APIKey: key, Model: cfg.DefaultModel}, nil
		}
	}

	providers := []struct {
		envVar   string
		provider ProviderName
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"OPENROUTER_API_KEY", ProviderOpenRouter},
	}
	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &Resolved{Provider: p.provider, APIKey: key, Model: cfg.DefaultModel}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; set one of: ANTHROPIC_API_KEY, OPENAI_API_KEY, OPENROUTER_API_KEY")
}

func keyFor(name ProviderName, cfg config.LLMConfig) string {
	switch name {
	case ProviderAnthropic:
		return cfg.AnthropicAPIKey
	case ProviderOpenAI:
		return cfg.OpenAIAPIKey
	case ProviderOpenRouter:
		return cfg.OpenRouterAPIKey
	}
	return ""
}

// NewClient builds a Client for the resolved provider, applying the
// shared timeout/retry/parallelism settings from config.
func NewClient(res *Resolved, cfg config.LLMConfig) (Client, error) {
	switch res.Provider {
	case ProviderAnthropic:
		c := DefaultAnthropicConfig(res.APIKey)
		applyShared(&c.Timeout, &c.MaxParallel, &c.MaxRetries, &c.BackoffBase, cfg)
		if res.Model != "" {
			c.Model = res.Model
		}
		return NewAnthropicClientWithConfig(c), nil

	case ProviderOpenAI:
		c := DefaultOpenAIConfig(res.APIKey)
		applyShared(&c.Timeout, &c.MaxParallel, &c.MaxRetries, &c.BackoffBase, cfg)
		if res.Model != "" {
			c.Model = res.Model
		}
		return NewOpenAIClientWithConfig(c), nil

	case ProviderOpenRouter:
		c := DefaultOpenRouterConfig(res.APIKey)
		applyShared(&c.Timeout, &c.MaxParallel, &c.MaxRetries, &c.BackoffBase, cfg)
		if res.Model != "" {
			c.Model = res.Model
		}
		return NewOpenRouterClientWithConfig(c), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", res.Provider)
	}
}

// NewClientFromConfig resolves and builds in one step.
func NewClientFromConfig(cfg config.LLMConfig) (Client, error) {
	res, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(res, cfg)
}

func applyShared(timeout *time.Duration, maxParallel *int64, maxRetries *int, backoffBase *time.Duration, cfg config.LLMConfig) {
	if cfg.RequestTimeout > 0 {
		*timeout = cfg.RequestTimeout
	}
	if cfg.MaxParallel > 0 {
		*maxParallel = int64(cfg.MaxParallel)
	}
	if cfg.MaxRetries > 0 {
		*maxRetries = cfg.MaxRetries
	}
	if cfg.RetryBackoffBase > 0 {
		*backoffBase = cfg.RetryBackoffBase
	}
}
