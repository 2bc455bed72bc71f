package api

import "time"

// Usage reports credit/quota utilization for the authenticated account.
// Also doubles as the credential validation probe: a successful GetUsage
// means the token works.
type Usage struct {
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	ResetsAt  *time.Time `json:"resetsAt,omitempty"`
	Plan      string     `json:"plan,omitempty"`
	Remaining int        `json:"remaining"`
}

// ConversationSummary is one entry of the conversation list
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// Conversation is the full message history of one conversation
type Conversation struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Messages []WireMessage `json:"messages"`
}

// WireMessage is the minimal role/content shape the service speaks, both in
// fetched histories and in outbound chat requests.
type WireMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ID        string     `json:"id,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ChangeEntry is one record of the site's edit audit log
type ChangeEntry struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CommitRef   string    `json:"commitRef,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ImageAttachment is side-channel image data sent with a chat request
type ImageAttachment struct {
	MediaType string `json:"mediaType"`
	Data      string `json:"data"` // base64
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Messages       []WireMessage     `json:"messages"`
	ConversationID string            `json:"conversationId,omitempty"`
	Images         []ImageAttachment `json:"images,omitempty"`
}
