package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sitepilot/internal/api"
	"sitepilot/internal/session"
)

// NewTab opens a fresh session tab. No-op at the cap.
func (o *Orchestrator) NewTab() {
	o.store.Dispatch(session.AddSession{Session: session.New()})
}

// CloseTab closes a tab and aborts its in-flight exchange, if any
func (o *Orchestrator) CloseTab(sessionID string) {
	o.handles.Cancel(sessionID)
	o.store.Dispatch(session.RemoveSession{ID: sessionID})
}

// SwitchTab saves the outgoing tab's scroll offset and activates the new
// one. Background sessions keep streaming; nothing is paused here.
func (o *Orchestrator) SwitchTab(sessionID string, outgoingScroll int) {
	o.store.Dispatch(session.SaveScroll{ID: o.store.ActiveID(), Offset: outgoingScroll})
	o.store.Dispatch(session.SetActive{ID: sessionID})
}

// OpenConversation loads a past conversation from the service into a tab.
// Below the cap it opens a new tab; at the cap it replaces the currently
// active one.
func (o *Orchestrator) OpenConversation(ctx context.Context, conversationID string) error {
	conv, err := o.client.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	sess := session.New()
	sess.ConversationID = conv.ID
	if conv.Title != "" {
		sess.Title = conv.Title
	}
	for _, m := range conv.Messages {
		msg := session.Message{
			ID:      m.ID,
			Role:    session.Role(m.Role),
			Content: m.Content,
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if m.CreatedAt != nil {
			msg.CreatedAt = *m.CreatedAt
		}
		sess.Messages = append(sess.Messages, msg)
	}
	if sess.Title == session.DefaultTitle {
		for _, m := range sess.Messages {
			if m.Role == session.RoleUser {
				sess.Title = truncateTitle(m.Content)
				break
			}
		}
	}

	if o.store.Len() >= session.MaxSessions {
		active := o.store.ActiveID()
		o.handles.Cancel(active)
		o.store.Dispatch(session.RemoveSession{ID: active})
	}
	o.store.Dispatch(session.AddSession{Session: sess})
	return nil
}

// DeleteConversation removes a conversation server-side
func (o *Orchestrator) DeleteConversation(ctx context.Context, conversationID string) error {
	return o.client.DeleteConversation(ctx, conversationID)
}

// --- Secondary refreshes ---
//
// These feed indicators, not the chat flow. Their failures are logged and
// swallowed; a nil/empty result just leaves the previous value on screen.

// RefreshUsage fetches utilization; nil on failure
func (o *Orchestrator) RefreshUsage(ctx context.Context) *api.Usage {
	usage, err := o.client.GetUsage(ctx)
	if err != nil {
		o.logger.Debug().Err(err).Msg("usage refresh failed")
		return nil
	}
	return usage
}

// RefreshConversations fetches the conversation list; nil on failure
func (o *Orchestrator) RefreshConversations(ctx context.Context) []api.ConversationSummary {
	conversations, err := o.client.ListConversations(ctx)
	if err != nil {
		o.logger.Debug().Err(err).Msg("conversation list refresh failed")
		return nil
	}
	return conversations
}

// RefreshChanges fetches the recent edit log; nil on failure
func (o *Orchestrator) RefreshChanges(ctx context.Context, limit int) []api.ChangeEntry {
	changes, err := o.client.ListChanges(ctx, limit)
	if err != nil {
		o.logger.Debug().Err(err).Msg("change log refresh failed")
		return nil
	}
	return changes
}

// PollHealth probes the service liveness endpoint on a fixed interval and
// reports transitions to onChange (true = reachable). Runs until ctx ends.
func (o *Orchestrator) PollHealth(ctx context.Context, interval time.Duration, onChange func(healthy bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ticker.C:
			current := o.client.Health(ctx) == nil
			if current != healthy {
				healthy = current
				o.logger.Info().Bool("healthy", healthy).Msg("service health changed")
				onChange(healthy)
			}

		case <-ctx.Done():
			return
		}
	}
}
