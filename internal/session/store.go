package session

import (
	"slices"
	"sync"
)

// Store is the registry of open sessions. Dispatch applies actions
// synchronously under one lock; reads return deep copies. Invariants held
// across every transition: len(order) == len(sessions) <= MaxSessions, the
// active id always resolves, and the registry is never empty.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	activeID string

	watchers []chan struct{}
}

// NewStore creates a store seeded with one fresh session
func NewStore() *Store {
	s := &Store{sessions: make(map[string]*Session)}
	first := New()
	s.sessions[first.ID] = first
	s.order = []string{first.ID}
	s.activeID = first.ID
	return s
}

// NewStoreWith restores a store from previously archived sessions. Entries
// beyond the cap are dropped; an unknown active id falls back to the first
// tab; an empty list falls back to a fresh store.
func NewStoreWith(sessions []*Session, activeID string) *Store {
	if len(sessions) == 0 {
		return NewStore()
	}
	if len(sessions) > MaxSessions {
		sessions = sessions[:MaxSessions]
	}

	s := &Store{sessions: make(map[string]*Session)}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
		s.order = append(s.order, sess.ID)
	}
	if _, ok := s.sessions[activeID]; ok {
		s.activeID = activeID
	} else {
		s.activeID = s.order[0]
	}
	return s
}

// Dispatch applies one action and notifies watchers
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.apply(action)
	s.mu.Unlock()
	s.notify()
}

// apply is the reducer. Callers hold the write lock.
func (s *Store) apply(action Action) {
	switch a := action.(type) {
	case AddSession:
		if len(s.order) >= MaxSessions {
			return
		}
		s.sessions[a.Session.ID] = a.Session
		s.order = append(s.order, a.Session.ID)
		s.activeID = a.Session.ID

	case RemoveSession:
		idx := slices.Index(s.order, a.ID)
		if idx < 0 {
			return
		}
		delete(s.sessions, a.ID)
		s.order = slices.Delete(s.order, idx, idx+1)

		if len(s.order) == 0 {
			// Same-transition substitution keeps the registry non-empty
			fresh := New()
			s.sessions[fresh.ID] = fresh
			s.order = []string{fresh.ID}
			s.activeID = fresh.ID
			return
		}
		if s.activeID == a.ID {
			if idx > 0 {
				s.activeID = s.order[idx-1]
			} else {
				s.activeID = s.order[0]
			}
		}

	case SetActive:
		if _, ok := s.sessions[a.ID]; ok {
			s.activeID = a.ID
		}

	case UpdateSession:
		if sess, ok := s.sessions[a.ID]; ok {
			if a.Title != nil {
				sess.Title = *a.Title
			}
			if a.Input != nil {
				sess.Input = *a.Input
			}
		}

	case AppendMessage:
		if sess, ok := s.sessions[a.ID]; ok {
			sess.Messages = append(sess.Messages, a.Message)
		}

	case SetStreamingText:
		if sess, ok := s.sessions[a.ID]; ok {
			sess.StreamingText = a.Text
		}

	case SetStreaming:
		if sess, ok := s.sessions[a.ID]; ok {
			sess.IsStreaming = a.Streaming
		}

	case SetActiveTools:
		if sess, ok := s.sessions[a.ID]; ok {
			sess.ActiveTools = a.Tools
		}

	case AppendTool:
		if sess, ok := s.sessions[a.ID]; ok {
			sess.ActiveTools = append(sess.ActiveTools, a.Tool)
		}

	case UpdateTool:
		sess, ok := s.sessions[a.ID]
		if !ok || a.Status == ToolRunning {
			return
		}
		for i := range sess.ActiveTools {
			if sess.ActiveTools[i].ToolUseID == a.ToolUseID {
				if sess.ActiveTools[i].Status == ToolRunning {
					sess.ActiveTools[i].Status = a.Status
				}
				return
			}
		}

	case SaveScroll:
		if sess, ok := s.sessions[a.ID]; ok {
			sess.ScrollPosition = a.Offset
		}

	case SetConversationID:
		if sess, ok := s.sessions[a.ID]; ok {
			sess.ConversationID = a.ConversationID
		}
	}
}

// --- Reads (all return copies) ---

// Get returns a deep copy of one session
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Active returns a deep copy of the active session
func (s *Store) Active() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[s.activeID].clone()
}

// ActiveID returns the active session id
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Order returns the tab display order
func (s *Store) Order() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of open sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// All returns deep copies of every session in tab order
func (s *Store) All() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].clone())
	}
	return out
}

// --- Change notification ---

// Watch returns a channel that receives a coalesced signal after every
// dispatch. The channel is buffered: a slow consumer sees at least one
// signal for any burst of changes.
func (s *Store) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
