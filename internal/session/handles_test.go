package session

import (
	"context"
	"testing"
)

func TestHandles_CancelAbortsAndRemoves(t *testing.T) {
	h := NewHandles()
	ctx, cancel := context.WithCancel(context.Background())
	h.Put("s1", cancel)

	if !h.Cancel("s1") {
		t.Fatal("expected a handle to exist")
	}
	if ctx.Err() != context.Canceled {
		t.Error("expected context to be cancelled")
	}
	if h.Cancel("s1") {
		t.Error("handle must be removed after cancel")
	}
}

func TestHandles_CancelUnknownSession(t *testing.T) {
	h := NewHandles()
	if h.Cancel("nope") {
		t.Error("expected no handle for unknown session")
	}
}

func TestHandles_PutReplacesAndCancelsPrevious(t *testing.T) {
	h := NewHandles()
	first, cancelFirst := context.WithCancel(context.Background())
	h.Put("s1", cancelFirst)

	_, cancelSecond := context.WithCancel(context.Background())
	h.Put("s1", cancelSecond)

	if first.Err() != context.Canceled {
		t.Error("replaced handle must be cancelled so it cannot leak")
	}
}

func TestHandles_ReleaseDoesNotCancel(t *testing.T) {
	h := NewHandles()
	ctx, cancel := context.WithCancel(context.Background())
	h.Put("s1", cancel)

	h.Release("s1")
	if ctx.Err() != nil {
		t.Error("release must not cancel the context")
	}
	if h.Cancel("s1") {
		t.Error("handle must be gone after release")
	}
}
