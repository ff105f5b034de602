// Package gitutil wraps the git CLI for workspace auto-commits. Every
// invocation passes arguments as an argv vector; nothing is ever routed
// through a shell.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"webforge/internal/logging"
)

// run executes one git command in dir.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(ctx context.Context, dir string) bool {
	out, err := run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// AutoCommit stages everything in dir and commits with message,
// initializing a repository on first use. A workspace with no changes
// commits nothing and returns nil.
func AutoCommit(ctx context.Context, dir, message string) error {
	if !IsRepo(ctx, dir) {
		if _, err := run(ctx, dir, "init"); err != nil {
			return err
		}
		logging.Git("initialized repository in %s", dir)
	}

	if _, err := run(ctx, dir, "add", "-A"); err != nil {
		return err
	}

	out, err := run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" {
		logging.GitDebug("nothing to commit in %s", dir)
		return nil
	}

	if _, err := run(ctx, dir,
		"-c", "user.name=webforge", "-c", "user.email=webforge@localhost",
		"commit", "-m", message); err != nil {
		return err
	}
	logging.Git("committed workspace %s", dir)
	return nil
}
