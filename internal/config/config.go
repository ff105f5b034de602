// Package config loads WebForge configuration from a YAML file with
// environment variable overrides. Environment always wins so container
// deployments can run without a config file at all.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"webforge/internal/logging"
)

// Config holds all WebForge configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	LLM       LLMConfig        `yaml:"llm"`
	Workspace WorkspaceConfig  `yaml:"workspace"`
	Store     StoreConfig      `yaml:"store"`
	Logging   logging.Settings `yaml:"logging"`
}

// StoreConfig configures the metadata sink.
type StoreConfig struct {
	// Path to the SQLite database file. Empty disables persistence.
	Path string `yaml:"path"`
	// QueueSize bounds the async write queue.
	QueueSize int `yaml:"queue_size"`
}

// Default returns the baseline configuration before file and env
// overrides are applied.
func Default() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Workspace: DefaultWorkspaceConfig(),
		Store: StoreConfig{
			Path:      ".forge/metadata.db",
			QueueSize: 256,
		},
		Logging: logging.Settings{Level: "info"},
	}
}

// Load reads the config file at path (if present) and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("DEFAULT_LLM_PROVIDER"); v != "" {
		c.LLM.DefaultProvider = v
	}
	if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		c.LLM.DefaultModel = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.LLM.OpenRouterAPIKey = v
	}
	if v := os.Getenv("WORKSPACE_DIR"); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv("ENABLE_GIT"); v != "" {
		c.Workspace.EnableGit = v == "1" || v == "true"
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace root must not be empty")
	}
	if c.LLM.MaxParallel <= 0 {
		return fmt.Errorf("llm max_parallel must be positive, got %d", c.LLM.MaxParallel)
	}
	return nil
}
