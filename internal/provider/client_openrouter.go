package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// OpenRouterClient implements Client for OpenRouter, which speaks the
// OpenAI wire format with optional attribution headers.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	model      string
	siteURL    string
	siteName   string
	httpClient *http.Client
	sem        *semaphore.Weighted
	retry      retryPolicy
}

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxParallel int64
	MaxRetries  int
	BackoffBase time.Duration
	SiteURL     string // Optional
	SiteName    string // Optional
}

// DefaultOpenRouterConfig returns sensible defaults.
func DefaultOpenRouterConfig(apiKey string) OpenRouterConfig {
	return OpenRouterConfig{
		APIKey:      apiKey,
		BaseURL:     "https://openrouter.ai/api/v1",
		Model:       "anthropic/claude-3.5-sonnet",
		Timeout:     120 * time.Second,
		MaxParallel: 8,
		MaxRetries:  3,
		BackoffBase: time.Second,
	}
}

// NewOpenRouterClient creates a new OpenRouter client with defaults.
func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return NewOpenRouterClientWithConfig(DefaultOpenRouterConfig(apiKey))
}

// NewOpenRouterClientWithConfig creates a new OpenRouter client.
func NewOpenRouterClientWithConfig(cfg OpenRouterConfig) *OpenRouterClient {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &OpenRouterClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		siteURL:    cfg.SiteURL,
		siteName:   cfg.SiteName,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sem:        semaphore.NewWeighted(cfg.MaxParallel),
		retry:      retryPolicy{maxAttempts: cfg.MaxRetries, backoffBase: cfg.BackoffBase},
	}
}

// Name returns the provider name.
func (c *OpenRouterClient) Name() string { return "openrouter" }

// Model returns the configured model.
func (c *OpenRouterClient) Model() string { return c.model }

func (c *OpenRouterClient) headers() map[string]string {
	h := map[string]string{}
	if c.siteURL != "" {
		h["HTTP-Referer"] = c.siteURL
	}
	if c.siteName != "" {
		h["X-Title"] = c.siteName
	}
	return h
}

// Complete sends messages and returns the completion.
func (c *OpenRouterClient) Complete(ctx context.Context, msgs []types.Message, opts Options) (*Completion, error) {
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
	logging.ProviderDebug("[openrouter] Complete: model=%s messages=%d", c.resolveModel(opts), len(msgs))

	result, err := withRetry(ctx, c.Name(), c.retry, func(ctx context.Context) (*Completion, error) {
		resp, err := sendOpenAIFormat(ctx, c.httpClient, c.Name(), c.baseURL, c.apiKey, c.headers(), msgs, c.resolveModel(opts), opts, false)
		if err != nil {
			return nil, err
		}
		return decodeOpenAIFormat(c.Name(), resp)
	})
	if err != nil {
		return nil, err
	}

	logging.Provider("[openrouter] Complete: done in %v response_len=%d", time.Since(start), len(result.Content))
	return result, nil
}

// CompleteStream sends messages with streaming enabled.
func (c *OpenRouterClient) CompleteStream(ctx context.Context, msgs []types.Message, opts Options) (<-chan string, <-chan error) {
	return streamOpenAIFormat(ctx, c.httpClient, c.Name(), c.baseURL, c.apiKey, c.headers(), c.sem, msgs, c.resolveModel(opts), opts)
}

func (c *OpenRouterClient) resolveModel(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}
