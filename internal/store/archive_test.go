package store

import (
	"path/filepath"
	"testing"
	"time"

	"sitepilot/internal/session"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "tabs.db"))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleSessions() []session.Session {
	now := time.Now().Truncate(time.Millisecond)
	return []session.Session{
		{
			ID:             "tab-1",
			ConversationID: "conv-1",
			Title:          "Fix banner",
			Input:          "half-typed draft",
			ScrollPosition: 120,
			CreatedAt:      now,
			Messages: []session.Message{
				{ID: "m1", Role: session.RoleAssistant, Content: session.Greeting, CreatedAt: now},
				{ID: "m2", Role: session.RoleUser, Content: "fix the banner", CreatedAt: now},
				{ID: "m3", Role: session.RoleAssistant, Content: "Done.", CreatedAt: now},
			},
		},
		{
			ID:        "tab-2",
			Title:     session.DefaultTitle,
			CreatedAt: now,
			Messages: []session.Message{
				{ID: "m4", Role: session.RoleAssistant, Content: session.Greeting, CreatedAt: now},
			},
		},
	}
}

// =============================================================================
// Roundtrip
// =============================================================================

func TestArchive_SaveLoadRoundtrip(t *testing.T) {
	a := openTestArchive(t)
	sessions := sampleSessions()

	if err := a.Save(sessions, "tab-2"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, activeID, err := a.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if activeID != "tab-2" {
		t.Errorf("expected active tab-2, got %q", activeID)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 tabs, got %d", len(loaded))
	}
	if loaded[0].ID != "tab-1" || loaded[1].ID != "tab-2" {
		t.Errorf("tab order not preserved: %s, %s", loaded[0].ID, loaded[1].ID)
	}

	got := loaded[0]
	want := sessions[0]
	if got.ConversationID != want.ConversationID ||
		got.Title != want.Title ||
		got.Input != want.Input ||
		got.ScrollPosition != want.ScrollPosition {
		t.Errorf("tab fields not preserved: %+v", got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created at: expected %v, got %v", want.CreatedAt, got.CreatedAt)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[1].Role != session.RoleUser || got.Messages[1].Content != "fix the banner" {
		t.Errorf("message not preserved: %+v", got.Messages[1])
	}
}

func TestArchive_SaveReplacesPreviousSnapshot(t *testing.T) {
	a := openTestArchive(t)
	sessions := sampleSessions()

	if err := a.Save(sessions, "tab-1"); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := a.Save(sessions[:1], "tab-1"); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, _, err := a.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("save must replace the snapshot, got %d tabs", len(loaded))
	}
}

func TestArchive_EmptyArchiveLoadsNothing(t *testing.T) {
	a := openTestArchive(t)
	loaded, activeID, err := a.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 0 || activeID != "" {
		t.Errorf("fresh archive must be empty, got %d tabs, active %q", len(loaded), activeID)
	}
}

func TestArchive_CorruptMessagesSkipTabOnly(t *testing.T) {
	a := openTestArchive(t)
	if err := a.Save(sampleSessions(), "tab-1"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := a.db.Exec(`UPDATE tabs SET messages = 'not json' WHERE id = 'tab-1'`); err != nil {
		t.Fatalf("corrupting row failed: %v", err)
	}

	loaded, _, err := a.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "tab-2" {
		t.Errorf("a corrupt tab must be skipped, the rest kept: %+v", loaded)
	}
}

// =============================================================================
// Store restore
// =============================================================================

func TestArchive_RestoreIntoStore(t *testing.T) {
	a := openTestArchive(t)
	if err := a.Save(sampleSessions(), "tab-2"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, activeID, err := a.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	st := session.NewStoreWith(loaded, activeID)
	if st.Len() != 2 {
		t.Fatalf("expected 2 restored tabs, got %d", st.Len())
	}
	if st.ActiveID() != "tab-2" {
		t.Errorf("expected active tab-2, got %q", st.ActiveID())
	}
	sess, ok := st.Get("tab-1")
	if !ok || len(sess.Messages) != 3 {
		t.Errorf("restored session incomplete: %+v", sess)
	}
}

func TestArchive_AutoSaveSnapshotsOnStoreChange(t *testing.T) {
	a := openTestArchive(t)
	st := session.NewStore()

	done := make(chan struct{})
	defer close(done)
	go a.AutoSave(done, st)

	st.Dispatch(session.UpdateSession{ID: st.ActiveID(), Title: titlePtr("Renamed tab")})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		loaded, _, err := a.Load()
		if err == nil && len(loaded) > 0 && loaded[0].Title == "Renamed tab" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("auto-save never persisted the store change")
}

func titlePtr(s string) *string {
	return &s
}
