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

// OpenAIClient implements Client for the OpenAI API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	sem        *semaphore.Weighted
	retry      retryPolicy
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxParallel int64
	MaxRetries  int
	BackoffBase time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o",
		Timeout:     120 * time.Second,
		MaxParallel: 8,
		MaxRetries:  3,
		BackoffBase: time.Second,
	}
}

// NewOpenAIClient creates a new OpenAI client with defaults.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(DefaultOpenAIConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client.
func NewOpenAIClientWithConfig(cfg OpenAIConfig) *OpenAIClient {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sem:        semaphore.NewWeighted(cfg.MaxParallel),
		retry:      retryPolicy{maxAttempts: cfg.MaxRetries, backoffBase: cfg.BackoffBase},
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return "openai" }

// Model returns the configured model.
func (c *OpenAIClient) Model() string { return c.model }

// Complete sends messages and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, msgs []types.Message, opts Options) (*Completion, error) {
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
	logging.ProviderDebug("[openai] Complete: model=%s messages=%d", c.resolveModel(opts), len(msgs))

	result, err := withRetry(ctx, c.Name(), c.retry, func(ctx context.Context) (*Completion, error) {
		resp, err := sendOpenAIFormat(ctx, c.httpClient, c.Name(), c.baseURL, c.apiKey, nil, msgs, c.resolveModel(opts), opts, false)
		if err != nil {
			return nil, err
		}
		return decodeOpenAIFormat(c.Name(), resp)
	})
	if err != nil {
		return nil, err
	}

	logging.Provider("[openai] Complete: done in %v response_len=%d", time.Since(start), len(result.Content))
	return result, nil
}

// CompleteStream sends messages with streaming enabled.
func (c *OpenAIClient) CompleteStream(ctx context.Context, msgs []types.Message, opts Options) (<-chan string, <-chan error) {
	return streamOpenAIFormat(ctx, c.httpClient, c.Name(), c.baseURL, c.apiKey, nil, c.sem, msgs, c.resolveModel(opts), opts)
}

func (c *OpenAIClient) resolveModel(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

// sendOpenAIFormat posts one chat-completion request in the OpenAI wire
// format. extraHeaders carries openrouter attribution headers.
func sendOpenAIFormat(ctx context.Context, hc *http.Client, name, baseURL, apiKey string, extraHeaders map[string]string, msgs []types.Message, model string, opts Options, stream bool) (*http.Response, error) {
	reqBody := OpenAIRequest{
		Model:       model,
		MaxTokens:   resolveMaxTokens(opts),
		Temperature: resolveTemperature(opts),
		TopP:        opts.TopP,
		Stream:      stream,
	}
	for _, m := range msgs {
		reqBody.Messages = append(reqBody.Messages, OpenAIMessage{Role: string(m.Role), Content: m.Content})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Kind: KindClient, Provider: name, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &Error{Kind: KindClient, Provider: name, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), Provider: name, Err: fmt.Errorf("request failed: %w", err)}
	}
	return resp, nil
}

func decodeOpenAIFormat(name string, resp *http.Response) (*Completion, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Provider: name, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:     classifyStatus(resp.StatusCode),
			Provider: name,
			Err:      fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 512)),
		}
	}

	var or OpenAIResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, &Error{Kind: KindDecode, Provider: name, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if or.Error != nil {
		kind := KindUpstream
		if strings.Contains(or.Error.Type, "auth") || or.Error.Code == "invalid_api_key" {
			kind = KindAuth
		}
		return nil, &Error{Kind: kind, Provider: name, Err: fmt.Errorf("API error: %s", or.Error.Message)}
	}
	if len(or.Choices) == 0 {
		return nil, &Error{Kind: KindDecode, Provider: name, Err: fmt.Errorf("no completion returned")}
	}

	return &Completion{
		Content:    strings.TrimSpace(or.Choices[0].Message.Content),
		TokensUsed: or.Usage.TotalTokens,
		Model:      or.Model,
	}, nil
}

func streamOpenAIFormat(ctx context.Context, hc *http.Client, name, baseURL, apiKey string, extraHeaders map[string]string, sem *semaphore.Weighted, msgs []types.Message, model string, opts Options) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, hc.Timeout)
			defer cancel()
		}

		if apiKey == "" {
			errorChan <- &Error{Kind: KindAuth, Provider: name, Attempts: 1, Err: fmt.Errorf("API key not configured")}
			return
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			errorChan <- wrapErr(name, 0, err)
			return
		}
		defer sem.Release(1)

		start := time.Now()
		logging.ProviderDebug("[%s] CompleteStream: model=%s", name, model)

		resp, err := sendOpenAIFormat(ctx, hc, name, baseURL, apiKey, extraHeaders, msgs, model, opts, true)
		if err != nil {
			errorChan <- stampAttempts(err, 1)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- &Error{
				Kind:     classifyStatus(resp.StatusCode),
				Provider: name,
				Attempts: 1,
				Err:      fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 512)),
			}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				logging.Provider("[%s] CompleteStream: completed in %v", name, time.Since(start))
				return
			}

			var chunk OpenAIResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				errorChan <- &Error{Kind: KindUpstream, Provider: name, Attempts: 1, Err: fmt.Errorf("API error: %s", chunk.Error.Message)}
				return
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil && chunk.Choices[0].Delta.Content != "" {
				select {
				case contentChan <- chunk.Choices[0].Delta.Content:
				case <-ctx.Done():
					errorChan <- wrapErr(name, 1, ctx.Err())
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errorChan <- &Error{Kind: KindUpstream, Provider: name, Attempts: 1, Err: fmt.Errorf("stream error: %w", err)}
		}
	}()

	return contentChan, errorChan
}
