package session

import (
	"context"
	"sync"

	"webforge/internal/provider"
	"webforge/internal/types"
)

// fakeClient returns scripted replies in order. A script entry with a
// non-nil err is delivered on the error channel instead of content.
type fakeClient struct {
	mu          sync.Mutex
	script      []scriptEntry
	calls       int
	plainCalls  int
	streamCalls int
	lastMsg     []types.Message
}

type scriptEntry struct {
	reply string
	err   error
}

func (f *fakeClient) next(msgs []types.Message) scriptEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMsg = msgs
	entry := scriptEntry{reply: "```\n// fallback generated file body\n```"}
	if f.calls < len(f.script) {
		entry = f.script[f.calls]
	}
	f.calls++
	return entry
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClient) callsByKind() (plain, streamed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plainCalls, f.streamCalls
}

func (f *fakeClient) Complete(ctx context.Context, msgs []types.Message, opts provider.Options) (*provider.Completion, error) {
	f.mu.Lock()
	f.plainCalls++
	f.mu.Unlock()
	entry := f.next(msgs)
	if entry.err != nil {
		return nil, entry.err
	}
	return &provider.Completion{Content: entry.reply, Model: f.Model()}, nil
}

func (f *fakeClient) CompleteStream(ctx context.Context, msgs []types.Message, opts provider.Options) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.streamCalls++
	f.mu.Unlock()
	entry := f.next(msgs)
	chunks := make(chan string, 8)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		if entry.err != nil {
			errs <- entry.err
			return
		}
		// Deliver in two chunks to exercise assembly.
		half := len(entry.reply) / 2
		chunks <- entry.reply[:half]
		chunks <- entry.reply[half:]
	}()
	return chunks, errs
}

func (f *fakeClient) Name() string  { return "fake" }
func (f *fakeClient) Model() string { return "fake-model" }

var _ provider.Client = (*fakeClient)(nil)

// fenced wraps a body in a code fence the parser accepts.
func fenced(body string) string {
	return "```\n" + body + "\n```"
}
