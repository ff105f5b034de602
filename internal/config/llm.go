package config

import "time"

// LLMConfig configures the provider layer.
type LLMConfig struct {
	DefaultProvider string `yaml:"default_provider"` // anthropic, openai, openrouter
	DefaultModel    string `yaml:"default_model"`

	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenRouterAPIKey string `yaml:"openrouter_api_key"`

	// Per-call hard timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxParallel caps concurrent in-flight requests per provider.
	MaxParallel int `yaml:"max_parallel"`
	// MaxRetries bounds attempts for retryable failures.
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoffBase is the first-retry delay; each retry doubles it.
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// DefaultLLMConfig returns sensible defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider:  "anthropic",
		RequestTimeout:   120 * time.Second,
		MaxParallel:      8,
		MaxRetries:       3,
		RetryBackoffBase: time.Second,
		Temperature:      0.1,
		MaxTokens:        4000,
	}
}
