package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webforge/internal/types"
)

func anthropicOK(content string) string {
	return fmt.Sprintf(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
		"content":[{"type":"text","text":%q}],
		"usage":{"input_tokens":10,"output_tokens":20}}`, content)
}

func testClient(t *testing.T, url string) *AnthropicClient {
	t.Helper()
	cfg := DefaultAnthropicConfig("sk-test")
	cfg.BaseURL = url
	cfg.Timeout = 5 * time.Second
	cfg.BackoffBase = time.Millisecond
	return NewAnthropicClientWithConfig(cfg)
}

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		fmt.Fprint(w, anthropicOK("hello world"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	got, err := c.Complete(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "sys"},
		{Role: types.RoleUser, Content: "hi"},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Content)
	assert.Equal(t, 30, got.TokensUsed)
	assert.Equal(t, "claude-test", got.Model)
}

func TestComplete_AuthNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":{"type":"authentication_error","message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "auth errors must produce exactly one upstream call")
}

func TestComplete_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":{"type":"invalid_request_error","message":"bad body"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, KindClient, KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestComplete_UpstreamRetriedThreeTimes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "retryable errors produce at most 3 attempts")

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Attempts)
}

func TestComplete_QuotaRecoversOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, anthropicOK("eventually"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	got, err := c.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "eventually", got.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCompleteStream_Deltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"<h1>"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi</h1>"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"message_stop"}`+"\n\n")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	contentCh, errCh := c.CompleteStream(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})

	var full string
	for chunk := range contentCh {
		full += chunk
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "<h1>Hi</h1>", full)
}

func TestCompleteStream_MidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`+"\n\n")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	contentCh, errCh := c.CompleteStream(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})

	var partial string
	for chunk := range contentCh {
		partial += chunk
	}
	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, "partial", partial, "deltas before the error remain with the caller")
}

func TestComplete_NoAPIKey(t *testing.T) {
	cfg := DefaultAnthropicConfig("")
	c := NewAnthropicClientWithConfig(cfg)
	_, err := c.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))
}

func TestKindRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindAuth, false},
		{KindClient, false},
		{KindQuota, true},
		{KindUpstream, true},
		{KindDecode, true},
	}
	for _, tc := range cases {
		if got := tc.kind.Retryable(); got != tc.want {
			t.Errorf("Retryable(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}
