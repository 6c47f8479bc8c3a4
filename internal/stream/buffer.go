// Package stream assembles incremental backend output fragments into a
// bounded number of platform send/edit calls.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coopco/chatbridge/internal/backend"
)

// DefaultFlushInterval is the minimum time between outbound edits for
// one in-flight message. The first chunk always flushes immediately.
const DefaultFlushInterval = 800 * time.Millisecond

// reasoningMarker prefixes reasoning content so it reads apart from the
// final answer text.
const reasoningMarker = "🤔 "

// Sink performs the platform calls for a flush. Implemented by the
// channel registry.
type Sink interface {
	// Send posts a new message and returns its platform message id.
	Send(ctx context.Context, conversationID, text string) (string, error)
	// Edit replaces the text of the message identified by externalID.
	Edit(ctx context.Context, conversationID, externalID, text string) error
}

// msgState is the outbound stream state for one backend message id.
type msgState struct {
	conversationID string
	sessionID      string
	kind           string
	content        string
	sent           string // content as of the last successful flush
	externalID     string // platform message id, empty until first send
	lastFlush      time.Time
}

// Buffer accumulates fragments per backend message id and throttles the
// resulting platform edits. Safe for concurrent use.
type Buffer struct {
	sink     Sink
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	states map[string]*msgState // backend message id -> state
}

// NewBuffer creates a Buffer flushing through sink at most once per
// interval per message. interval <= 0 uses DefaultFlushInterval.
func NewBuffer(sink Sink, interval time.Duration) *Buffer {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Buffer{
		sink:     sink,
		interval: interval,
		now:      time.Now,
		states:   make(map[string]*msgState),
	}
}

// Apply folds one fragment event into the buffer and flushes when due.
func (b *Buffer) Apply(ctx context.Context, conversationID string, ev backend.Event) {
	b.mu.Lock()
	st, ok := b.states[ev.MessageID]
	if !ok {
		st = &msgState{
			conversationID: conversationID,
			sessionID:      ev.SessionID,
			kind:           ev.Kind,
		}
		b.states[ev.MessageID] = st
	}
	b.merge(st, ev)

	// First content must go out immediately so the user sees something;
	// after that, flushes are coalesced to the throttle interval.
	due := st.externalID == "" || b.now().Sub(st.lastFlush) >= b.interval
	if !due || st.content == "" {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.flush(ctx, ev.MessageID, st)
}

// Finish applies the final fragment, forces one last flush of any
// unflushed tail, and discards the message state. A completion for a
// message with no live state is dropped: it was either already
// finished (redelivery) or its session state was discarded, and
// flushing it would post a duplicate answer.
func (b *Buffer) Finish(ctx context.Context, conversationID string, ev backend.Event) {
	b.mu.Lock()
	st, ok := b.states[ev.MessageID]
	if !ok {
		b.mu.Unlock()
		slog.Debug("completion for unknown message dropped", "conversation", conversationID, "message", ev.MessageID)
		return
	}
	b.merge(st, ev)
	delete(b.states, ev.MessageID)
	unflushed := st.content != "" && st.content != st.sent
	b.mu.Unlock()

	if unflushed {
		b.flush(ctx, ev.MessageID, st)
	}
}

// DropSession discards all stream state owned by sessionID without
// flushing. Used when the backend reports the session deleted/errored.
func (b *Buffer) DropSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, st := range b.states {
		if st.sessionID == sessionID {
			delete(b.states, id)
		}
	}
}

// Pending returns the number of in-flight message states.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.states)
}

// merge folds a fragment into st. Callers must hold b.mu.
// A delta appends; a snapshot replaces only when it is at least as long
// as the accumulation, so an out-of-order full packet can never undo
// newer deltas. Accumulated length never decreases.
func (b *Buffer) merge(st *msgState, ev backend.Event) {
	if ev.Delta != "" {
		st.content += ev.Delta
	}
	if ev.Snapshot != "" && len(ev.Snapshot) >= len(st.content) {
		st.content = ev.Snapshot
	}
}

// flush sends or edits the platform message to match st.content.
func (b *Buffer) flush(ctx context.Context, messageID string, st *msgState) {
	b.mu.Lock()
	raw := st.content
	externalID := st.externalID
	conversationID := st.conversationID
	kind := st.kind
	st.lastFlush = b.now()
	b.mu.Unlock()

	text := raw
	if kind == backend.KindReasoning {
		text = reasoningMarker + raw
	}

	if externalID == "" {
		id, err := b.sink.Send(ctx, conversationID, text)
		if err != nil {
			slog.Error("stream flush send failed", "conversation", conversationID, "message", messageID, "err", err)
			return
		}
		b.mu.Lock()
		st.externalID = id
		st.sent = raw
		b.mu.Unlock()
		return
	}

	if err := b.sink.Edit(ctx, conversationID, externalID, text); err != nil {
		slog.Error("stream flush edit failed", "conversation", conversationID, "message", messageID, "err", err)
		return
	}
	b.mu.Lock()
	st.sent = raw
	b.mu.Unlock()
}
