package chat

import (
	"context"

	"sitepilot/internal/session"
)

// SpeechCapability is the optional speech-to-text facility. Environments
// without one inject nil; the orchestrator never sniffs for it at runtime.
type SpeechCapability interface {
	// Transcribe captures audio until the context is cancelled and returns
	// the recognized text
	Transcribe(ctx context.Context) (string, error)
}

// CanDictate reports whether dictation is available
func (o *Orchestrator) CanDictate() bool {
	return o.speech != nil
}

// Dictate transcribes speech and appends it to the session's draft input.
// No-op when the capability is absent or the session does not exist.
func (o *Orchestrator) Dictate(ctx context.Context, sessionID string) error {
	if o.speech == nil {
		return nil
	}
	sess, ok := o.store.Get(sessionID)
	if !ok {
		return nil
	}

	text, err := o.speech.Transcribe(ctx)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	draft := sess.Input
	if draft != "" {
		draft += " "
	}
	o.store.Dispatch(session.UpdateSession{ID: sessionID, Input: ptr(draft + text)})
	return nil
}
