package provider

import (
	"context"
	"math/rand"
	"time"

	"webforge/internal/logging"
)

// decision is the outcome of classifying one attempt.
type decision int

const (
	decisionSuccess decision = iota
	decisionRetry
	decisionFail
)

// retryPolicy bounds the retry loop.
type retryPolicy struct {
	maxAttempts int
	backoffBase time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{maxAttempts: 3, backoffBase: time.Second}
}

// classify maps an attempt error to a retry decision.
func classify(err error) decision {
	if err == nil {
		return decisionSuccess
	}
	if KindOf(err).Retryable() {
		return decisionRetry
	}
	return decisionFail
}

// withRetry runs attempt up to policy.maxAttempts times, backing off
// exponentially with jitter between retries. The returned error is the
// last attempt's classified *Error with the attempt count filled in.
func withRetry(ctx context.Context, name string, policy retryPolicy, attempt func(ctx context.Context) (*Completion, error)) (*Completion, error) {
	var lastErr error

	for i := 0; i < policy.maxAttempts; i++ {
		if i > 0 {
			// base * 2^(i-1) plus up to one extra second of jitter
			delay := policy.backoffBase*(1<<uint(i-1)) + time.Duration(rand.Int63n(int64(time.Second)))
			logging.ProviderDebug("[%s] retrying in %v (attempt %d/%d)", name, delay, i+1, policy.maxAttempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, wrapErr(name, i, ctx.Err())
			}
		}

		result, err := attempt(ctx)
		switch classify(err) {
		case decisionSuccess:
			return result, nil
		case decisionFail:
			logging.ProviderWarn("[%s] non-retryable failure: %v", name, err)
			return nil, stampAttempts(err, i+1)
		case decisionRetry:
			lastErr = err
			logging.ProviderDebug("[%s] retryable failure: %v", name, err)
		}

		if ctx.Err() != nil {
			return nil, wrapErr(name, i+1, ctx.Err())
		}
	}

	logging.ProviderError("[%s] max retries exceeded: %v", name, lastErr)
	return nil, stampAttempts(lastErr, policy.maxAttempts)
}

func stampAttempts(err error, attempts int) error {
	if pe, ok := err.(*Error); ok {
		pe.Attempts = attempts
		return pe
	}
	return err
}

func wrapErr(name string, attempts int, cause error) error {
	return &Error{Kind: KindUpstream, Provider: name, Attempts: attempts, Err: cause}
}
