package config

import "time"

// WorkspaceConfig configures per-session workspaces.
type WorkspaceConfig struct {
	// Root is the directory under which session workspaces are created.
	Root string `yaml:"root"`
	// SessionTTL is how long an idle terminal session survives before
	// garbage collection.
	SessionTTL time.Duration `yaml:"session_ttl"`
	// SessionBudget bounds the wall time of one run.
	SessionBudget time.Duration `yaml:"session_budget"`
	// EnableGit turns on auto-commit after a completed run.
	EnableGit bool `yaml:"enable_git"`
	// MinFileBytes is the floor below which a generated non-config file
	// is considered a failed step.
	MinFileBytes int `yaml:"min_file_bytes"`
}

// DefaultWorkspaceConfig returns sensible defaults.
func DefaultWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{
		Root:          "./workspaces",
		SessionTTL:    24 * time.Hour,
		SessionBudget: 30 * time.Minute,
		MinFileBytes:  16,
	}
}
