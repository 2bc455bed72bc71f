package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrNoCredential is returned when a call is attempted without a stored
	// bearer token. After a 401 clears the credential, every call fails with
	// this before touching the network.
	ErrNoCredential = errors.New("no credential: authenticate first")

	// ErrUnauthorized is returned when the service rejects the credential.
	// The stored credential has already been cleared by the time callers see it.
	ErrUnauthorized = errors.New("unauthorized: credential rejected")
)

// TransportError wraps a network-level failure (connection refused, reset,
// DNS). Always retryable.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// TimeoutError wraps a client-side deadline overrun. Retryable, unless the
// caller's own cancellation was the cause (that surfaces as context.Canceled
// instead and is never wrapped).
type TimeoutError struct {
	Op    string
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s: %v", e.Op, e.Cause)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// RateLimitError is returned for 429 responses. Never retried transparently;
// RetryAfter carries the server-advised wait so callers can inform the user.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// HTTPError is any other non-2xx response
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s failed: status %d", e.Op, e.Status)
}

// Retryable reports whether an error is worth retrying: transport failures
// and timeouts qualify, the caller's own cancellation never does. The
// decision is made on typed causes, not error message text.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	return false
}

// classify converts a raw request error into the typed taxonomy. ctx is the
// caller's context (without the per-call deadline): if it was cancelled, the
// cancellation is surfaced untouched so it is never mistaken for a timeout.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() == context.Canceled {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Cause: err}
	}
	return &TransportError{Op: op, Cause: err}
}
