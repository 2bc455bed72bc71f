// Package stream decodes the agent service's server-push line protocol into
// typed events. The transport delivers arbitrarily-sized chunks that may
// split a line anywhere; the decoder buffers partial lines across chunk
// boundaries and never blocks on incomplete input.
package stream

// Event is a decoded protocol event. Exactly one concrete type per wire
// event name; consumers dispatch with a type switch.
type Event interface {
	isEvent()
}

// TextDelta appends a fragment to the in-progress assistant reply
type TextDelta struct {
	Text string `json:"text"`
}

// ToolStart announces a tool invocation beginning mid-exchange
type ToolStart struct {
	Tool      string         `json:"tool"`
	ToolUseID string         `json:"tool_use_id"`
	Input     map[string]any `json:"input,omitempty"`
}

// ToolResult reports a tool invocation finishing
type ToolResult struct {
	Tool      string `json:"tool"`
	ToolUseID string `json:"tool_use_id"`
	Output    any    `json:"output,omitempty"`
	IsError   bool   `json:"is_error"`
}

// Done terminates the exchange, carrying the (possibly new) conversation id
type Done struct {
	ConversationID string `json:"conversationId"`
}

// ErrorEvent signals a mid-stream failure reported by the service
type ErrorEvent struct {
	Message string `json:"message"`
}

func (TextDelta) isEvent()  {}
func (ToolStart) isEvent()  {}
func (ToolResult) isEvent() {}
func (Done) isEvent()       {}
func (ErrorEvent) isEvent() {}
