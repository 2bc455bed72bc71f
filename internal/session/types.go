// Package session holds the client-side chat state: up to four concurrent
// sessions (tabs), their messages, streaming buffers and tool activity. The
// Store is a synchronous reducer over a closed action set; network handles
// live in a separate Handles registry so the serializable state stays pure.
package session

import (
	"time"

	"github.com/google/uuid"
)

// MaxSessions caps the number of open tabs
const MaxSessions = 4

// DefaultTitle is the placeholder title before the first user message
const DefaultTitle = "New chat"

// Greeting is the synthetic assistant message every fresh session opens with.
// It is stripped from outbound histories.
const Greeting = "Hi! I'm your website assistant. Tell me what you'd like to change and I'll take care of it."

// Role identifies a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a session's transcript
type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// ToolStatus tracks a tool invocation's lifecycle. Transitions are only
// running→done and running→error.
type ToolStatus string

const (
	ToolRunning ToolStatus = "running"
	ToolDone    ToolStatus = "done"
	ToolError   ToolStatus = "error"
)

// ToolActivity is one tool invocation within the current exchange
type ToolActivity struct {
	Tool      string
	ToolUseID string
	Status    ToolStatus
	Input     map[string]any
}

// Session is one tab of conversation
type Session struct {
	ID             string
	ConversationID string // server-assigned; empty until first completed exchange
	Title          string
	Messages       []Message
	Input          string // draft text, never sent to the server as-is
	StreamingText  string // in-progress assistant reply
	IsStreaming    bool
	ActiveTools    []ToolActivity // reset at the start of each send
	ScrollPosition int
	CreatedAt      time.Time
}

// New creates a fresh session with the placeholder title and opening greeting
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: time.Now(),
		Messages: []Message{{
			ID:        uuid.NewString(),
			Role:      RoleAssistant,
			Content:   Greeting,
			CreatedAt: time.Now(),
		}},
	}
}

// clone returns a deep copy so store snapshots cannot alias internal state
func (s *Session) clone() Session {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.ActiveTools = make([]ToolActivity, len(s.ActiveTools))
	for i, t := range s.ActiveTools {
		out.ActiveTools[i] = t
		if t.Input != nil {
			in := make(map[string]any, len(t.Input))
			for k, v := range t.Input {
				in[k] = v
			}
			out.ActiveTools[i].Input = in
		}
	}
	return out
}
