package session

import (
	"context"
	"sync"
)

// Handles owns the per-session network cancellation functions. They are kept
// outside the Store on purpose: the session record stays serializable pure
// state, while live resources live here. Each session holds at most one
// handle at a time; the orchestrator rejects a new send while one is
// outstanding.
type Handles struct {
	mu sync.Mutex
	m  map[string]context.CancelFunc
}

// NewHandles creates an empty handle registry
func NewHandles() *Handles {
	return &Handles{m: make(map[string]context.CancelFunc)}
}

// Put registers the cancellation handle for a session. An existing handle
// for the same session is cancelled first so it can never leak.
func (h *Handles) Put(id string, cancel context.CancelFunc) {
	h.mu.Lock()
	prev := h.m[id]
	h.m[id] = cancel
	h.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Cancel aborts the session's in-flight work, if any. Reports whether a
// handle existed.
func (h *Handles) Cancel(id string) bool {
	h.mu.Lock()
	cancel, ok := h.m[id]
	delete(h.m, id)
	h.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Release drops the handle without cancelling (the exchange finished)
func (h *Handles) Release(id string) {
	h.mu.Lock()
	delete(h.m, id)
	h.mu.Unlock()
}
