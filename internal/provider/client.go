// Package provider implements the LLM client layer: one file per
// remote API (anthropic, openai, openrouter), a shared retry loop with
// error classification, and a factory that resolves the default
// provider from config and environment.
package provider

import (
	"context"

	"webforge/internal/types"
)

// Options tune a single completion call. Zero values fall back to the
// client's configured defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Content    string
	TokensUsed int
	Model      string
}

// Client is the uniform interface over remote chat-completion APIs.
// CompleteStream returns a content channel and an error channel; the
// content channel is closed when the upstream emits its end-of-stream
// marker. On a mid-stream transport error the error channel receives a
// classified *Error; any deltas already delivered remain valid, the
// caller decides whether to keep the partial content. Clients are
// stateless between calls and safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, msgs []types.Message, opts Options) (*Completion, error)
	CompleteStream(ctx context.Context, msgs []types.Message, opts Options) (<-chan string, <-chan error)
	Name() string
	Model() string
}

// splitSystem separates the system prompt from the chat turns, since
// anthropic carries it in a dedicated field.
func splitSystem(msgs []types.Message) (string, []types.Message) {
	var system string
	rest := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem && system == "" {
			system = m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
