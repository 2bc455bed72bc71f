package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"sitepilot/internal/config"
)

func testCreds(t *testing.T) *config.CredentialStore {
	t.Helper()
	creds := config.NewCredentialStore(filepath.Join(t.TempDir(), "credential"))
	if err := creds.Set("test-token"); err != nil {
		t.Fatalf("failed to store credential: %v", err)
	}
	return creds
}

// recordedSleep captures backoff delays instead of waiting them out
func recordedSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		*delays = append(*delays, d)
		return nil
	}
}

// failNTransport fails the first n round trips with a transport error, then
// delegates to the real transport
type failNTransport struct {
	n     int32
	inner http.RoundTripper
}

func (f *failNTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if atomic.AddInt32(&f.n, -1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return f.inner.RoundTrip(req)
}

// =============================================================================
// Retry and backoff
// =============================================================================

func TestClient_RetriesTransportFailuresWithDoublingBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"used":5,"limit":100}`))
	}))
	defer server.Close()

	var delays []time.Duration
	c := NewClient(server.URL, testCreds(t), Options{
		MaxRetries:   3,
		RetryBackoff: 10 * time.Millisecond,
		HTTPClient:   &http.Client{Transport: &failNTransport{n: 3, inner: http.DefaultTransport}},
		Sleep:        recordedSleep(&delays),
	})

	usage, err := c.GetUsage(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if usage.Used != 5 {
		t.Errorf("expected decoded usage, got %+v", usage)
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d backoff delays, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
		if i > 0 && delays[i] <= delays[i-1] {
			t.Errorf("backoff sequence must be strictly increasing: %v", delays)
		}
	}
}

func TestClient_ExhaustedRetriesSurfaceTransportError(t *testing.T) {
	var delays []time.Duration
	c := NewClient("http://127.0.0.1:1", testCreds(t), Options{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		HTTPClient:   &http.Client{Transport: &failNTransport{n: 100, inner: http.DefaultTransport}},
		Sleep:        recordedSleep(&delays),
	})

	_, err := c.GetUsage(context.Background())
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if len(delays) != 2 {
		t.Errorf("expected 2 retries, got %d", len(delays))
	}
}

func TestClient_HTTPErrorsAreNotRetried(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	var delays []time.Duration
	c := NewClient(server.URL, testCreds(t), Options{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		Sleep:        recordedSleep(&delays),
	})

	_, err := c.GetUsage(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected HTTPError 500, got %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("5xx responses must not be retried, saw %d requests", n)
	}
}

func TestClient_TimeoutIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	var delays []time.Duration
	c := NewClient(server.URL, testCreds(t), Options{
		RequestTimeout: 20 * time.Millisecond,
		MaxRetries:     1,
		RetryBackoff:   time.Millisecond,
		Sleep:          recordedSleep(&delays),
	})

	_, err := c.GetUsage(context.Background())
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if !Retryable(err) {
		t.Error("timeouts must be classified retryable")
	}
	if len(delays) != 1 {
		t.Errorf("expected one retry before giving up, got %d", len(delays))
	}
}

func TestClient_CallerCancellationIsNeverRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	var delays []time.Duration
	c := NewClient(server.URL, testCreds(t), Options{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		Sleep:        recordedSleep(&delays),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.GetUsage(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if Retryable(err) {
		t.Error("cancellation must never be retryable")
	}
	if len(delays) != 0 {
		t.Errorf("cancellation must not trigger retries, got %v", delays)
	}
}

// =============================================================================
// Session expiry
// =============================================================================

func TestClient_401ClearsCredentialAndFiresHook(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := testCreds(t)
	var hookCalls int32
	c := NewClient(server.URL, creds, Options{
		OnAuthExpired: func() { atomic.AddInt32(&hookCalls, 1) },
	})

	_, err := c.GetUsage(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if creds.Token() != "" {
		t.Error("credential must be cleared on 401")
	}
	if atomic.LoadInt32(&hookCalls) != 1 {
		t.Errorf("expected hook fired once, got %d", hookCalls)
	}

	// After clearance no further call may reach the network
	before := atomic.LoadInt32(&requests)
	if _, err := c.ListConversations(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if atomic.LoadInt32(&requests) != before {
		t.Error("a call with a cleared credential must never be attempted")
	}
}

func TestClient_401IsNotRetried(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var delays []time.Duration
	c := NewClient(server.URL, testCreds(t), Options{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		Sleep:        recordedSleep(&delays),
	})

	c.GetUsage(context.Background())
	if atomic.LoadInt32(&requests) != 1 || len(delays) != 0 {
		t.Errorf("401 must be terminal: %d requests, %d retries", requests, len(delays))
	}
}

// =============================================================================
// Rate limiting
// =============================================================================

func TestClient_429SurfacesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(server.URL, testCreds(t), Options{})
	_, err := c.StreamChat(context.Background(), ChatRequest{})

	var rate *RateLimitError
	if !errors.As(err, &rate) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rate.RetryAfter != 30*time.Second {
		t.Errorf("expected 30s retry-after, got %v", rate.RetryAfter)
	}
	if Retryable(err) {
		t.Error("rate limiting must not be transparently retried")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("45"); d != 45*time.Second {
		t.Errorf("delta-seconds: expected 45s, got %v", d)
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if d := parseRetryAfter(future); d <= 0 || d > time.Minute {
		t.Errorf("http-date: expected ~1m, got %v", d)
	}
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("empty header: expected 0, got %v", d)
	}
	if d := parseRetryAfter("garbage"); d != 0 {
		t.Errorf("garbage header: expected 0, got %v", d)
	}
}

// =============================================================================
// Endpoints
// =============================================================================

func TestClient_StreamChatReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", auth)
		}
		w.Write([]byte("event: done\ndata: {\"conversationId\":\"c9\"}\n"))
	}))
	defer server.Close()

	c := NewClient(server.URL, testCreds(t), Options{})
	body, err := c.StreamChat(context.Background(), ChatRequest{
		Messages: []WireMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if string(data) != "event: done\ndata: {\"conversationId\":\"c9\"}\n" {
		t.Errorf("unexpected stream body %q", data)
	}
}

func TestClient_ManagementEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /conversations":
			w.Write([]byte(`{"conversations":[{"id":"c1","title":"Fix banner","messageCount":4}]}`))
		case "GET /conversations/c1":
			w.Write([]byte(`{"id":"c1","title":"Fix banner","messages":[{"role":"user","content":"fix it"}]}`))
		case "DELETE /conversations/c1":
			w.WriteHeader(http.StatusNoContent)
		case "GET /changes":
			if r.URL.Query().Get("limit") != "10" {
				t.Errorf("expected limit=10, got %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"changes":[{"id":"ch1","description":"Updated hours","commitRef":"abc123"}]}`))
		case "GET /health":
			w.Write([]byte(`ok`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, testCreds(t), Options{})
	ctx := context.Background()

	conversations, err := c.ListConversations(ctx)
	if err != nil || len(conversations) != 1 || conversations[0].ID != "c1" {
		t.Errorf("ListConversations: %v / %+v", err, conversations)
	}

	conv, err := c.GetConversation(ctx, "c1")
	if err != nil || len(conv.Messages) != 1 || conv.Messages[0].Content != "fix it" {
		t.Errorf("GetConversation: %v / %+v", err, conv)
	}

	if err := c.DeleteConversation(ctx, "c1"); err != nil {
		t.Errorf("DeleteConversation: %v", err)
	}

	changes, err := c.ListChanges(ctx, 10)
	if err != nil || len(changes) != 1 || changes[0].CommitRef != "abc123" {
		t.Errorf("ListChanges: %v / %+v", err, changes)
	}

	if err := c.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}
}

// =============================================================================
// Classification
// =============================================================================

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", &TransportError{Op: "x", Cause: errors.New("reset")}, true},
		{"timeout", &TimeoutError{Op: "x", Cause: context.DeadlineExceeded}, true},
		{"cancelled", context.Canceled, false},
		{"rate limit", &RateLimitError{}, false},
		{"http", &HTTPError{Status: 500}, false},
		{"unauthorized", ErrUnauthorized, false},
		{"no credential", ErrNoCredential, false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
