// Package backend defines the contract with the conversational agent
// backend: session creation, fire-and-forget prompt submission, and a
// push stream of output events.
package backend

import (
	"context"
	"errors"
)

// Event types pushed by the backend.
const (
	EventMessageDelta   = "message.delta"     // incremental content fragment
	EventMessageUpdated = "message.updated"   // full-snapshot fragment
	EventMessageDone    = "message.completed" // message finished, snapshot is final
	EventSessionDeleted = "session.deleted"
	EventSessionError   = "session.error"
	EventToolUse        = "tool.use" // status/tool activity, logged only
)

// Content kinds carried by fragment events.
const (
	KindText      = "text"
	KindReasoning = "reasoning"
)

// Event is one backend event. Fragment events carry either Delta or
// Snapshot; session events carry only SessionID.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId,omitempty"`
	Kind      string `json:"contentKind,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Snapshot  string `json:"snapshot,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// IsFragment reports whether the event carries message content.
func (e Event) IsFragment() bool {
	switch e.Type {
	case EventMessageDelta, EventMessageUpdated, EventMessageDone:
		return true
	}
	return false
}

// ErrSessionGone means the backend no longer knows the session; the
// binding must be invalidated and recreated on the next message.
var ErrSessionGone = errors.New("backend session gone")

// EventStream is one live subscription to the backend's event feed.
type EventStream interface {
	// Next blocks until an event arrives, the stream fails, or ctx is done.
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Client is the backend agent surface the bridge consumes.
type Client interface {
	// CreateSession creates a backend session and returns its id.
	CreateSession(ctx context.Context, title string) (string, error)
	// Prompt submits text to a session. Results arrive via the event
	// stream, not the return value. Returns ErrSessionGone if the
	// backend reports the session missing.
	Prompt(ctx context.Context, sessionID, text string) error
	// SubscribeEvents opens a new event stream subscription.
	SubscribeEvents(ctx context.Context) (EventStream, error)
}
