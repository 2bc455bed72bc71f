package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sitepilot/internal/config"
	"sitepilot/internal/log"
)

// Client is the resilient HTTP client for the agent service. It owns three
// concerns: per-call timeouts (short for management calls, long for the
// streaming chat call), bounded retry with exponential backoff for idempotent
// calls, and centralized session-expiry handling (any 401 clears the stored
// credential and fires the OnAuthExpired hook).
type Client struct {
	baseURL string
	creds   *config.CredentialStore
	httpc   *http.Client

	requestTimeout time.Duration
	streamTimeout  time.Duration
	healthTimeout  time.Duration

	maxRetries int
	backoff    time.Duration

	onAuthExpired func()
	sleep         func(ctx context.Context, d time.Duration) error

	logger zerolog.Logger
}

// Options configures a Client. Zero values fall back to the global config.
type Options struct {
	RequestTimeout time.Duration
	StreamTimeout  time.Duration
	HealthTimeout  time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration

	// OnAuthExpired is invoked exactly once per 401, after the credential has
	// been cleared. The application uses it to force re-authentication.
	OnAuthExpired func()

	// HTTPClient overrides the transport (tests)
	HTTPClient *http.Client

	// Sleep overrides the backoff delay (tests)
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for the agent service at baseURL
func NewClient(baseURL string, creds *config.CredentialStore, opts Options) *Client {
	cfg := config.Get()

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		creds:          creds,
		httpc:          opts.HTTPClient,
		requestTimeout: opts.RequestTimeout,
		streamTimeout:  opts.StreamTimeout,
		healthTimeout:  opts.HealthTimeout,
		maxRetries:     opts.MaxRetries,
		backoff:        opts.RetryBackoff,
		onAuthExpired:  opts.OnAuthExpired,
		sleep:          opts.Sleep,
		logger:         log.GetLogger("api"),
	}

	if c.httpc == nil {
		c.httpc = &http.Client{}
	}
	if c.requestTimeout == 0 {
		c.requestTimeout = cfg.RequestTimeout
	}
	if c.streamTimeout == 0 {
		c.streamTimeout = cfg.StreamTimeout
	}
	if c.healthTimeout == 0 {
		c.healthTimeout = cfg.HealthTimeout
	}
	if c.maxRetries == 0 {
		c.maxRetries = cfg.MaxRetries
	}
	if c.backoff == 0 {
		c.backoff = cfg.RetryBackoff
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}

	return c
}

// --- Management endpoints (single responses, retried here) ---

// GetUsage fetches utilization info. Also serves as the credential probe.
func (c *Client) GetUsage(ctx context.Context) (*Usage, error) {
	var usage Usage
	err := c.withRetry(ctx, "get usage", func() error {
		return c.doJSON(ctx, "get usage", http.MethodGet, "/usage", nil, &usage)
	})
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// ListConversations fetches all conversation summaries
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	err := c.withRetry(ctx, "list conversations", func() error {
		return c.doJSON(ctx, "list conversations", http.MethodGet, "/conversations", nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetConversation fetches the full message history of one conversation
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := c.withRetry(ctx, "get conversation", func() error {
		return c.doJSON(ctx, "get conversation", http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation deletes a conversation
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.withRetry(ctx, "delete conversation", func() error {
		return c.doJSON(ctx, "delete conversation", http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil)
	})
}

// ListChanges fetches the most recent entries of the site's edit audit log
func (c *Client) ListChanges(ctx context.Context, limit int) ([]ChangeEntry, error) {
	var out struct {
		Changes []ChangeEntry `json:"changes"`
	}
	path := fmt.Sprintf("/changes?limit=%d", limit)
	err := c.withRetry(ctx, "list changes", func() error {
		return c.doJSON(ctx, "list changes", http.MethodGet, path, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Changes, nil
}

// Health probes the service with a short timeout. Not retried: the caller
// polls it periodically anyway.
func (c *Client) Health(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	resp, err := c.send(reqCtx, "health", http.MethodGet, "/health", nil)
	if err != nil {
		return classifyIfRaw(ctx, "health", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// --- Streaming chat endpoint ---

// StreamChat starts a chat exchange and returns the raw streaming body. The
// timeout here bounds the entire stream, so it is much larger than the
// management-call budget. Retrying mid-stream failures is the orchestrator's
// job: a redo must resume the conversation, not just the handshake.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)

	resp, err := c.send(reqCtx, "chat", http.MethodPost, "/chat", req)
	if err != nil {
		cancel()
		return nil, classifyIfRaw(ctx, "chat", err)
	}

	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelReadCloser ties the stream-timeout context to the body's lifetime
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// --- Internals ---

// withRetry runs fn up to maxRetries+1 times with exponentially increasing
// delay (backoff × 2^n). Only typed-retryable failures are retried; the
// caller's cancellation aborts immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * (1 << (attempt - 1))
			c.logger.Debug().
				Str("op", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying after backoff")
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
		}

		err = fn()
		if err == nil || !Retryable(err) {
			return err
		}
	}

	c.logger.Warn().Str("op", op).Err(err).Msg("retries exhausted")
	return err
}

// doJSON issues a single request with the management-call timeout and decodes
// the JSON response into out (out may be nil for calls with no useful body).
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.send(reqCtx, op, method, path, body)
	if err != nil {
		return classifyIfRaw(ctx, op, err)
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Cause: err}
	}
	return nil
}

// send issues the request and maps the auth/rate-limit statuses. Errors from
// the transport itself are returned raw; callers classify them against their
// own (deadline-free) context.
func (c *Client) send(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	token := c.creds.Token()
	if token == "" {
		return nil, ErrNoCredential
	}
	if c.creds.Expired() {
		// Known-dead JWT: skip the round trip, treat like a 401.
		c.expireCredential(op, "token expired locally")
		return nil, ErrUnauthorized
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, rawError{err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		c.expireCredential(op, "service returned 401")
		return nil, ErrUnauthorized

	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HTTPError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	return resp, nil
}

func (c *Client) expireCredential(op, reason string) {
	c.logger.Warn().Str("op", op).Str("reason", reason).Msg("credential expired, clearing")
	c.creds.Clear()
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
}

// rawError marks a transport-layer error that still needs classification
type rawError struct{ err error }

func (e rawError) Error() string { return e.err.Error() }
func (e rawError) Unwrap() error { return e.err }

// classifyIfRaw classifies raw transport errors and passes typed ones through
func classifyIfRaw(ctx context.Context, op string, err error) error {
	var raw rawError
	if asRaw(err, &raw) {
		return classify(ctx, op, raw.err)
	}
	return err
}

func asRaw(err error, target *rawError) bool {
	if r, ok := err.(rawError); ok {
		*target = r
		return true
	}
	return false
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
