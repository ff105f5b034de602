package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a provider failure. The executor and the HTTP layer
// both branch on it, so the set is closed.
type Kind string

const (
	KindAuth     Kind = "auth"     // upstream rejected credentials
	KindClient   Kind = "client"   // malformed request, other 4xx
	KindQuota    Kind = "quota"    // 429 / rate limited
	KindUpstream Kind = "upstream" // 5xx, network reset, timeout
	KindDecode   Kind = "decode"   // response body could not be decoded
)

// Retryable reports whether failures of this kind may be retried.
// Auth and client errors never are.
func (k Kind) Retryable() bool {
	switch k {
	case KindQuota, KindUpstream, KindDecode:
		return true
	}
	return false
}

// Error is the single error type surfaced by the provider layer. It
// carries the classification and the last-attempt cause.
type Error struct {
	Kind     Kind
	Provider string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Provider, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err, or KindUpstream if err
// is not a provider error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUpstream
}

// classifyStatus maps an HTTP status code to a failure kind.
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindQuota
	case status >= 500:
		return KindUpstream
	case status >= 400:
		return KindClient
	default:
		return KindUpstream
	}
}

// classifyTransport maps a transport-level error to a failure kind.
// Context cancellation passes through untouched so callers can
// distinguish a user cancel from an upstream failure.
func classifyTransport(err error) Kind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindUpstream
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindUpstream
	}
	return KindUpstream
}
