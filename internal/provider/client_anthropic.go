package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// AnthropicClient implements Client for the direct Anthropic API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	sem        *semaphore.Weighted
	retry      retryPolicy
}

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxParallel int64
	MaxRetries  int
	BackoffBase time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.anthropic.com/v1",
		Model:       "claude-sonnet-4-5-20250514",
		Timeout:     120 * time.Second,
		MaxParallel: 8,
		MaxRetries:  3,
		BackoffBase: time.Second,
	}
}

// NewAnthropicClient creates a new Anthropic client with defaults.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return NewAnthropicClientWithConfig(DefaultAnthropicConfig(apiKey))
}

// NewAnthropicClientWithConfig creates a new Anthropic client.
func NewAnthropicClientWithConfig(cfg AnthropicConfig) *AnthropicClient {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sem:        semaphore.NewWeighted(cfg.MaxParallel),
		retry:      retryPolicy{maxAttempts: cfg.MaxRetries, backoffBase: cfg.BackoffBase},
	}
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Model returns the configured model.
func (c *AnthropicClient) Model() string { return c.model }

// Complete sends messages and returns the completion.
func (c *AnthropicClient) Complete(ctx context.Context, msgs []types.Message, opts Options) (*Completion, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		return nil, &Error{Kind: KindAuth, Provider: c.Name(), Attempts: 1, Err: fmt.Errorf("API key not configured")}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, wrapErr(c.Name(), 0, err)
	}
	defer c.sem.Release(1)

	start := time.Now()
	logging.ProviderDebug("[anthropic] Complete: model=%s messages=%d", c.resolveModel(opts), len(msgs))

	result, err := withRetry(ctx, c.Name(), c.retry, func(ctx context.Context) (*Completion, error) {
		return c.doComplete(ctx, msgs, opts, false)
	})
	if err != nil {
		return nil, err
	}

	logging.Provider("[anthropic] Complete: done in %v response_len=%d", time.Since(start), len(result.Content))
	return result, nil
}

func (c *AnthropicClient) doComplete(ctx context.Context, msgs []types.Message, opts Options, stream bool) (*Completion, error) {
	resp, err := c.send(ctx, msgs, opts, stream)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Provider: c.Name(), Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:     classifyStatus(resp.StatusCode),
			Provider: c.Name(),
			Err:      fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 512)),
		}
	}

	var ar AnthropicResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, &Error{Kind: KindDecode, Provider: c.Name(), Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if ar.Error != nil {
		kind := KindUpstream
		if strings.Contains(ar.Error.Type, "authentication") {
			kind = KindAuth
		}
		return nil, &Error{Kind: kind, Provider: c.Name(), Err: fmt.Errorf("API error: %s", ar.Error.Message)}
	}
	if len(ar.Content) == 0 {
		return nil, &Error{Kind: KindDecode, Provider: c.Name(), Err: fmt.Errorf("no completion returned")}
	}

	var sb strings.Builder
	for _, block := range ar.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Completion{
		Content:    strings.TrimSpace(sb.String()),
		TokensUsed: ar.Usage.InputTokens + ar.Usage.OutputTokens,
		Model:      ar.Model,
	}, nil
}

func (c *AnthropicClient) send(ctx context.Context, msgs []types.Message, opts Options, stream bool) (*http.Response, error) {
	system, rest := splitSystem(msgs)

	reqBody := AnthropicRequest{
		Model:       c.resolveModel(opts),
		MaxTokens:   resolveMaxTokens(opts),
		System:      system,
		Temperature: resolveTemperature(opts),
		TopP:        opts.TopP,
		Stream:      stream,
	}
	for _, m := range rest {
		reqBody.Messages = append(reqBody.Messages, AnthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Kind: KindClient, Provider: c.Name(), Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &Error{Kind: KindClient, Provider: c.Name(), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), Provider: c.Name(), Err: fmt.Errorf("request failed: %w", err)}
	}
	return resp, nil
}

// CompleteStream sends messages with streaming enabled and forwards
// content deltas as they arrive.
func (c *AnthropicClient) CompleteStream(ctx context.Context, msgs []types.Message, opts Options) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		if c.apiKey == "" {
			errorChan <- &Error{Kind: KindAuth, Provider: c.Name(), Attempts: 1, Err: fmt.Errorf("API key not configured")}
			return
		}

		if err := c.sem.Acquire(ctx, 1); err != nil {
			errorChan <- wrapErr(c.Name(), 0, err)
			return
		}
		defer c.sem.Release(1)

		start := time.Now()
		logging.ProviderDebug("[anthropic] CompleteStream: model=%s", c.resolveModel(opts))

		resp, err := c.send(ctx, msgs, opts, true)
		if err != nil {
			errorChan <- stampAttempts(err, 1)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- &Error{
				Kind:     classifyStatus(resp.StatusCode),
				Provider: c.Name(),
				Attempts: 1,
				Err:      fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 512)),
			}
			return
		}

		if err := c.scanStream(ctx, resp.Body, contentChan); err != nil {
			errorChan <- err
			return
		}
		logging.Provider("[anthropic] CompleteStream: completed in %v", time.Since(start))
	}()

	return contentChan, errorChan
}

func (c *AnthropicClient) scanStream(ctx context.Context, body io.Reader, out chan<- string) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var evt struct {
			Type  string `json:"type"`
			Delta *struct {
				Type string `json:"type"`
				Text string `json:"text,omitempty"`
			} `json:"delta,omitempty"`
			Error *struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error,omitempty"`
		}
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			continue
		}
		if evt.Error != nil {
			return &Error{Kind: KindUpstream, Provider: c.Name(), Attempts: 1, Err: fmt.Errorf("API error: %s", evt.Error.Message)}
		}
		if evt.Type == "message_stop" {
			return nil
		}
		if evt.Type == "content_block_delta" && evt.Delta != nil && evt.Delta.Text != "" {
			select {
			case out <- evt.Delta.Text:
			case <-ctx.Done():
				return wrapErr(c.Name(), 1, ctx.Err())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &Error{Kind: KindUpstream, Provider: c.Name(), Attempts: 1, Err: fmt.Errorf("stream error: %w", err)}
	}
	return nil
}

func (c *AnthropicClient) resolveModel(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

func resolveMaxTokens(opts Options) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return 4000
}

func resolveTemperature(opts Options) float64 {
	if opts.Temperature > 0 {
		return opts.Temperature
	}
	return 0.1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
