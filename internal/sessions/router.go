// Package sessions maps external conversations to backend sessions.
// Bindings are volatile: they live in memory and are rebuilt from first
// contact after a restart.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coopco/chatbridge/internal/backend"
)

// ErrSessionInit means backend session creation failed. The router does
// not retry; the caller surfaces the failure to the user.
var ErrSessionInit = errors.New("session creation failed")

// Binding ties one conversation to one live backend session.
type Binding struct {
	ConversationID string
	SessionID      string
	SenderID       string // last-known sender in the conversation
	CreatedAt      time.Time
}

// Router resolves conversation ids to backend session ids, creating
// sessions lazily. A conversation maps to at most one live binding at
// any instant; callers serialize per-conversation access through the
// conversation queue.
type Router struct {
	client backend.Client
	now    func() time.Time

	mu             sync.Mutex
	byConversation map[string]*Binding
	bySession      map[string]string // sessionID -> conversationID
}

// NewRouter creates an empty Router creating sessions through client.
func NewRouter(client backend.Client) *Router {
	return &Router{
		client:         client,
		now:            time.Now,
		byConversation: make(map[string]*Binding),
		bySession:      make(map[string]string),
	}
}

// Resolve returns the session id bound to conversationID, creating a
// backend session first if none is bound. The sender identity is
// recorded on every call.
func (r *Router) Resolve(ctx context.Context, conversationID, senderID string) (string, error) {
	r.mu.Lock()
	if b, ok := r.byConversation[conversationID]; ok {
		b.SenderID = senderID
		sessionID := b.SessionID
		r.mu.Unlock()
		return sessionID, nil
	}
	r.mu.Unlock()

	// Titles carry a short random suffix so rapid invalidate/recreate
	// cycles never collide on the backend.
	title := fmt.Sprintf("%s %s", conversationID, uuid.NewString()[:8])
	sessionID, err := r.client.CreateSession(ctx, title)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionInit, err)
	}

	r.mu.Lock()
	r.byConversation[conversationID] = &Binding{
		ConversationID: conversationID,
		SessionID:      sessionID,
		SenderID:       senderID,
		CreatedAt:      r.now(),
	}
	r.bySession[sessionID] = conversationID
	r.mu.Unlock()

	slog.Info("session created", "conversation", conversationID, "session", sessionID)
	return sessionID, nil
}

// Invalidate drops the binding for conversationID so the next Resolve
// creates a fresh session.
func (r *Router) Invalidate(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byConversation[conversationID]; ok {
		delete(r.bySession, b.SessionID)
		delete(r.byConversation, conversationID)
		slog.Info("session binding invalidated", "conversation", conversationID, "session", b.SessionID)
	}
}

// InvalidateBySession drops the binding owning sessionID. Used when the
// backend asynchronously reports a session deleted or errored.
func (r *Router) InvalidateBySession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversationID, ok := r.bySession[sessionID]; ok {
		delete(r.byConversation, conversationID)
		delete(r.bySession, sessionID)
		slog.Info("session binding invalidated", "conversation", conversationID, "session", sessionID)
	}
}

// Lookup returns the conversation owning sessionID, if any. This is the
// reverse mapping the event listener demultiplexes with.
func (r *Router) Lookup(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversationID, ok := r.bySession[sessionID]
	return conversationID, ok
}

// Binding returns a copy of the binding for conversationID, if any.
func (r *Router) Binding(conversationID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byConversation[conversationID]; ok {
		return *b, true
	}
	return Binding{}, false
}

// Clear drops every binding. Used on shutdown.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConversation = make(map[string]*Binding)
	r.bySession = make(map[string]string)
}
