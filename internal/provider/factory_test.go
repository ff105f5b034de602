package provider

import (
	"testing"

	"webforge/internal/config"
)

func TestNewClient_Providers(t *testing.T) {
	llm := config.DefaultLLMConfig()

	// 1. Anthropic
	client, err := NewClient(&Resolved{Provider: ProviderAnthropic, APIKey: "sk-ant-test"}, llm)
	if err != nil {
		t.Fatalf("Failed to create Anthropic client: %v", err)
	}
	if _, ok := client.(*AnthropicClient); !ok {
		t.Errorf("Expected *AnthropicClient, got %T", client)
	}

	// 2. OpenAI
	client, err = NewClient(&Resolved{Provider: ProviderOpenAI, APIKey: "sk-openai-test"}, llm)
	if err != nil {
		t.Fatalf("Failed to create OpenAI client: %v", err)
	}
	if _, ok := client.(*OpenAIClient); !ok {
		t.Errorf("Expected *OpenAIClient, got %T", client)
	}

	// 3. OpenRouter with model override
	client, err = NewClient(&Resolved{Provider: ProviderOpenRouter, APIKey: "sk-or-test", Model: "openai/gpt-4o-mini"}, llm)
	if err != nil {
		t.Fatalf("Failed to create OpenRouter client: %v", err)
	}
	if or, ok := client.(*OpenRouterClient); !ok {
		t.Errorf("Expected *OpenRouterClient, got %T", client)
	} else if or.Model() != "openai/gpt-4o-mini" {
		t.Errorf("Model override not propagated, got %s", or.Model())
	}

	// 4. Unknown provider
	if _, err = NewClient(&Resolved{Provider: ProviderName("unknown"), APIKey: "key"}, llm); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestResolve_EnvFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env")

	res, err := Resolve(config.LLMConfig{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Provider != ProviderOpenAI {
		t.Errorf("Expected openai (env priority), got %s", res.Provider)
	}
	if res.APIKey != "sk-from-env" {
		t.Errorf("Wrong key: %s", res.APIKey)
	}
}

func TestResolve_ConfigWins(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	res, err := Resolve(config.LLMConfig{
		DefaultProvider:  "openrouter",
		OpenRouterAPIKey: "sk-cfg",
		DefaultModel:     "deepseek/deepseek-chat",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Provider != ProviderOpenRouter || res.APIKey != "sk-cfg" {
		t.Errorf("Config provider not honored: %+v", res)
	}
	if res.Model != "deepseek/deepseek-chat" {
		t.Errorf("Model not carried: %s", res.Model)
	}
}

func TestResolve_NoKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	if _, err := Resolve(config.LLMConfig{}); err == nil {
		t.Error("Expected error when no keys configured")
	}
}
