// Package chat composes the engine: it turns a user send into a streaming
// request, feeds the response through the stream decoder, dispatches events
// into the session store, and arms the deploy watcher when an exchange
// published a change.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sitepilot/internal/api"
	"sitepilot/internal/config"
	"sitepilot/internal/deploy"
	"sitepilot/internal/log"
	"sitepilot/internal/session"
	"sitepilot/internal/stream"
)

// titleLimit is how many runes of the first user message become the tab title
const titleLimit = 25

// retryingPlaceholder is shown in the streaming buffer between attempts
const retryingPlaceholder = "Connection lost, retrying…"

// Orchestrator drives send/receive exchanges for all sessions. One instance
// serves every tab; per-session state lives in the store and the handle
// registry, so exchanges for different sessions progress independently.
type Orchestrator struct {
	store   *session.Store
	handles *session.Handles
	client  *api.Client
	deploy  *deploy.Watcher

	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	publishTool string
	speech      SpeechCapability

	// onExchangeDone runs after every completed exchange (usage refresh and
	// similar secondary work; its failures must never disturb the chat flow)
	onExchangeDone func()

	logger zerolog.Logger
}

// Options configures an Orchestrator
type Options struct {
	MaxAttempts  int           // total attempts per exchange, including the first
	RetryBackoff time.Duration // base delay, doubled per attempt

	// PublishTool overrides the tool name that marks a publishing side-effect
	PublishTool string

	// Speech is the optional dictation capability; nil when the environment
	// does not provide one
	Speech SpeechCapability

	OnExchangeDone func()

	Sleep func(ctx context.Context, d time.Duration) error
}

// New wires an orchestrator over the given collaborators
func New(store *session.Store, handles *session.Handles, client *api.Client, watcher *deploy.Watcher, opts Options) *Orchestrator {
	cfg := config.Get()

	o := &Orchestrator{
		store:          store,
		handles:        handles,
		client:         client,
		deploy:         watcher,
		maxAttempts:    opts.MaxAttempts,
		backoff:        opts.RetryBackoff,
		sleep:          opts.Sleep,
		publishTool:    opts.PublishTool,
		speech:         opts.Speech,
		onExchangeDone: opts.OnExchangeDone,
		logger:         log.GetLogger("chat"),
	}

	if o.maxAttempts == 0 {
		o.maxAttempts = cfg.MaxRetries
	}
	if o.backoff == 0 {
		o.backoff = cfg.RetryBackoff
	}
	if o.sleep == nil {
		o.sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if o.publishTool == "" {
		o.publishTool = "commit_and_publish"
	}

	return o
}

// Send starts one exchange for a session. No-op when the text is empty with
// no attachments, when the session is already streaming, or when the session
// does not exist. The exchange itself runs asynchronously.
func (o *Orchestrator) Send(sessionID, text string, images []api.ImageAttachment) {
	text = strings.TrimSpace(text)

	sess, ok := o.store.Get(sessionID)
	if !ok {
		return
	}
	if text == "" && len(images) == 0 {
		return
	}
	if sess.IsStreaming {
		return
	}

	firstTurn := true
	for _, m := range sess.Messages {
		if m.Role == session.RoleUser {
			firstTurn = false
			break
		}
	}

	o.store.Dispatch(session.AppendMessage{ID: sessionID, Message: session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}})
	o.store.Dispatch(session.UpdateSession{ID: sessionID, Input: ptr("")})
	o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: ""})
	o.store.Dispatch(session.SetActiveTools{ID: sessionID, Tools: nil})
	o.store.Dispatch(session.SetStreaming{ID: sessionID, Streaming: true})

	if firstTurn && text != "" {
		o.store.Dispatch(session.UpdateSession{ID: sessionID, Title: ptr(truncateTitle(text))})
	}

	go o.runExchange(sessionID, images)
}

// Cancel aborts a session's in-flight exchange. Deliberate cancellation is a
// terminal, silent state: no error message is appended.
func (o *Orchestrator) Cancel(sessionID string) {
	o.handles.Cancel(sessionID)
}

// runExchange drives bounded attempts of one exchange. The attempt budget is
// an explicit loop bound, not shared mutable state, so concurrent sessions
// retry independently.
func (o *Orchestrator) runExchange(sessionID string, images []api.ImageAttachment) {
	defer func() {
		o.store.Dispatch(session.SetStreaming{ID: sessionID, Streaming: false})
		o.handles.Release(sessionID)
	}()

	var err error
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		ctx, cancel := context.WithCancel(context.Background())
		o.handles.Put(sessionID, cancel)

		err = o.attemptOnce(ctx, sessionID, images)
		if err == nil {
			cancel()
			return
		}

		if errors.Is(err, context.Canceled) {
			// User-initiated abort: leave the transcript untouched
			o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: ""})
			cancel()
			return
		}

		if !retryable(err) || attempt == o.maxAttempts-1 {
			cancel()
			break
		}

		o.logger.Info().
			Str("sessionId", sessionID).
			Int("attempt", attempt+1).
			Err(err).
			Msg("exchange failed, retrying")
		o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: retryingPlaceholder})

		delay := o.backoff * (1 << attempt)
		sleepErr := o.sleep(ctx, delay)
		cancel()
		if sleepErr != nil {
			// Cancelled while waiting to retry
			o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: ""})
			return
		}
	}

	o.logger.Warn().Str("sessionId", sessionID).Err(err).Msg("exchange failed terminally")
	o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: ""})
	if !alreadySurfaced(err) {
		o.store.Dispatch(session.AppendMessage{ID: sessionID, Message: session.Message{
			ID:        uuid.NewString(),
			Role:      session.RoleAssistant,
			Content:   userFacingError(err),
			CreatedAt: time.Now(),
		}})
	}
}

// attemptOnce performs a single streaming round trip
func (o *Orchestrator) attemptOnce(ctx context.Context, sessionID string, images []api.ImageAttachment) error {
	sess, ok := o.store.Get(sessionID)
	if !ok {
		// Tab was closed while a retry was pending
		return context.Canceled
	}

	body, err := o.client.StreamChat(ctx, api.ChatRequest{
		Messages:       outboundHistory(sess),
		ConversationID: sess.ConversationID,
		Images:         images,
	})
	if err != nil {
		return err
	}
	defer body.Close()

	// Replace any retry placeholder before deltas arrive
	o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: ""})

	var (
		accumulated string
		publish     bool
		finished    bool
		doneEvent   stream.Done
		failure     *streamEventError
	)

	decoder := stream.NewDecoder(func(event stream.Event) {
		switch e := event.(type) {
		case stream.TextDelta:
			accumulated += e.Text
			o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: accumulated})

		case stream.ToolStart:
			o.store.Dispatch(session.AppendTool{ID: sessionID, Tool: session.ToolActivity{
				Tool:      e.Tool,
				ToolUseID: e.ToolUseID,
				Status:    session.ToolRunning,
				Input:     e.Input,
			}})

		case stream.ToolResult:
			status := session.ToolDone
			if e.IsError {
				status = session.ToolError
			}
			o.store.Dispatch(session.UpdateTool{ID: sessionID, ToolUseID: e.ToolUseID, Status: status})
			if !e.IsError && o.isPublishTool(e.Tool) {
				publish = true
			}

		case stream.Done:
			finished = true
			doneEvent = e

		case stream.ErrorEvent:
			failure = &streamEventError{message: e.Message}
		}
	})

	if copyErr := stream.Copy(decoder, body); copyErr != nil {
		if ctx.Err() == context.Canceled {
			return context.Canceled
		}
		return &api.TransportError{Op: "chat stream", Cause: copyErr}
	}

	if failure != nil {
		// Finalize what arrived before the failure so nothing the user saw
		// streaming in disappears, then let the retry policy decide.
		if accumulated != "" {
			o.store.Dispatch(session.AppendMessage{ID: sessionID, Message: session.Message{
				ID:        uuid.NewString(),
				Role:      session.RoleAssistant,
				Content:   accumulated + "\n\n⚠️ " + failure.message,
				CreatedAt: time.Now(),
			}})
			o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: ""})
			failure.surfaced = true
		}
		return failure
	}

	if !finished {
		// Stream ended without a done event: the connection dropped mid-reply
		return &api.TransportError{Op: "chat stream", Cause: errors.New("stream ended before done event")}
	}

	if accumulated != "" {
		o.store.Dispatch(session.AppendMessage{ID: sessionID, Message: session.Message{
			ID:        uuid.NewString(),
			Role:      session.RoleAssistant,
			Content:   accumulated,
			CreatedAt: time.Now(),
		}})
	}
	o.store.Dispatch(session.SetStreamingText{ID: sessionID, Text: ""})
	if doneEvent.ConversationID != "" {
		o.store.Dispatch(session.SetConversationID{ID: sessionID, ConversationID: doneEvent.ConversationID})
	}

	if publish && o.deploy != nil {
		o.deploy.StartPolling()
	}
	if o.onExchangeDone != nil {
		go o.onExchangeDone()
	}

	return nil
}

// outboundHistory maps the transcript to the wire shape, dropping the
// synthetic opening greeting
func outboundHistory(sess session.Session) []api.WireMessage {
	out := make([]api.WireMessage, 0, len(sess.Messages))
	for i, m := range sess.Messages {
		if i == 0 && m.Role == session.RoleAssistant && m.Content == session.Greeting {
			continue
		}
		out = append(out, api.WireMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func (o *Orchestrator) isPublishTool(name string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	return normalized == o.publishTool
}

// truncateTitle keeps the first titleLimit runes, marking longer titles with
// an ellipsis
func truncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit]) + "…"
}

// streamEventError is an application-level `error` stream event. It is
// classified like a transport failure for retry purposes.
type streamEventError struct {
	message  string
	surfaced bool // partial text plus suffix already appended to the transcript
}

func (e *streamEventError) Error() string {
	return "agent reported error: " + e.message
}

func retryable(err error) bool {
	var see *streamEventError
	if errors.As(err, &see) {
		return true
	}
	return api.Retryable(err)
}

func alreadySurfaced(err error) bool {
	var see *streamEventError
	return errors.As(err, &see) && see.surfaced
}

// userFacingError renders a terminal failure as a visible transcript entry
func userFacingError(err error) string {
	var rate *api.RateLimitError
	if errors.As(err, &rate) && rate.RetryAfter > 0 {
		return "⚠️ The service is rate limited right now. Please try again in " + rate.RetryAfter.String() + "."
	}
	if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, api.ErrNoCredential) {
		return "⚠️ Your session has expired. Please sign in again."
	}
	var see *streamEventError
	if errors.As(err, &see) {
		return "⚠️ " + see.message
	}
	return "⚠️ Something went wrong sending your message. Please try again."
}

func ptr[T any](v T) *T {
	return &v
}
