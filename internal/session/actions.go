package session

// Action is the closed set of store mutations. Every variant names the
// session it targets; the reducer silently ignores actions whose session no
// longer exists, so a stream still draining for a closed tab cannot
// resurrect it. Keeping the set closed (one struct per variant, exhaustive
// type switch) is deliberate: a new event kind that is not handled is a
// compile-visible gap, not a silently dropped patch.
type Action interface {
	isAction()
}

// AddSession inserts a session and makes it active. No-op at the tab cap.
type AddSession struct {
	Session *Session
}

// RemoveSession closes a tab, moving activity to the previous tab in order.
// Removing the last remaining session substitutes a fresh default session in
// the same transition, so the registry is never empty.
type RemoveSession struct {
	ID string
}

// SetActive switches the active tab
type SetActive struct {
	ID string
}

// UpdateSession applies a partial update. Nil fields are left untouched.
type UpdateSession struct {
	ID    string
	Title *string
	Input *string
}

// AppendMessage appends one transcript entry
type AppendMessage struct {
	ID      string
	Message Message
}

// SetStreamingText replaces the in-progress reply buffer
type SetStreamingText struct {
	ID   string
	Text string
}

// SetStreaming flips the in-flight flag
type SetStreaming struct {
	ID        string
	Streaming bool
}

// SetActiveTools replaces the tool-activity list (used to reset per send)
type SetActiveTools struct {
	ID    string
	Tools []ToolActivity
}

// AppendTool registers a new tool activity
type AppendTool struct {
	ID   string
	Tool ToolActivity
}

// UpdateTool replaces the status of the activity matching ToolUseID.
// No-op if the session or entry does not exist, or if the transition would
// move an entry back to running.
type UpdateTool struct {
	ID        string
	ToolUseID string
	Status    ToolStatus
}

// SaveScroll records the tab's last vertical scroll offset
type SaveScroll struct {
	ID     string
	Offset int
}

// SetConversationID stores the server-assigned conversation id
type SetConversationID struct {
	ID             string
	ConversationID string
}

func (AddSession) isAction()        {}
func (RemoveSession) isAction()     {}
func (SetActive) isAction()         {}
func (UpdateSession) isAction()     {}
func (AppendMessage) isAction()     {}
func (SetStreamingText) isAction()  {}
func (SetStreaming) isAction()      {}
func (SetActiveTools) isAction()    {}
func (AppendTool) isAction()        {}
func (UpdateTool) isAction()        {}
func (SaveScroll) isAction()        {}
func (SetConversationID) isAction() {}
