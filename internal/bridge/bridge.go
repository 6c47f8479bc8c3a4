// Package bridge wires the inbound bus, dedup cache, conversation
// queue, session router, event listener, and stream buffer into one
// engine routing traffic between chat platforms and the backend agent.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coopco/chatbridge/internal/backend"
	"github.com/coopco/chatbridge/internal/bus"
	"github.com/coopco/chatbridge/internal/channels"
	"github.com/coopco/chatbridge/internal/convoq"
	"github.com/coopco/chatbridge/internal/dedup"
	"github.com/coopco/chatbridge/internal/sessions"
	"github.com/coopco/chatbridge/internal/stream"
)

// ErrResponseTimeout means a prompt submission did not complete within
// the configured ceiling.
var ErrResponseTimeout = errors.New("response timed out")

const (
	defaultPromptTimeout = 90 * time.Second

	// processingReaction marks a user's message while it is in flight,
	// on channels that support reactions.
	processingReaction = "eyes"
)

// Config holds the bridge's collaborators and tunables.
type Config struct {
	Bus      *bus.MessageBus
	Registry *channels.Registry
	Backend  backend.Client

	DedupCapacity      int           // 0 = dedup.DefaultCapacity
	FlushInterval      time.Duration // 0 = stream.DefaultFlushInterval
	PromptTimeout      time.Duration // 0 = 90s
	MaxAttachmentBytes int64         // 0 = DefaultMaxAttachmentBytes
}

// Bridge is the session-routing engine.
type Bridge struct {
	bus      *bus.MessageBus
	registry *channels.Registry
	client   backend.Client

	router   *sessions.Router
	queue    *convoq.Queue
	seen     *dedup.Cache
	buffer   *stream.Buffer
	listener *backend.Listener

	httpClient    *http.Client
	promptTimeout time.Duration
	maxAttachment int64
}

// New assembles a Bridge from cfg.
func New(cfg Config) *Bridge {
	promptTimeout := cfg.PromptTimeout
	if promptTimeout <= 0 {
		promptTimeout = defaultPromptTimeout
	}
	maxAttachment := cfg.MaxAttachmentBytes
	if maxAttachment <= 0 {
		maxAttachment = DefaultMaxAttachmentBytes
	}

	router := sessions.NewRouter(cfg.Backend)
	b := &Bridge{
		bus:           cfg.Bus,
		registry:      cfg.Registry,
		client:        cfg.Backend,
		router:        router,
		queue:         convoq.New(),
		seen:          dedup.NewCache(cfg.DedupCapacity),
		buffer:        stream.NewBuffer(cfg.Registry, cfg.FlushInterval),
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		promptTimeout: promptTimeout,
		maxAttachment: maxAttachment,
	}
	b.listener = backend.NewListener(cfg.Backend, backend.Hooks{
		LookupConversation: router.Lookup,
		OnFragment:         b.onFragment,
		OnSessionGone:      b.onSessionGone,
	})
	return b
}

// Run starts the event listener and consumes inbound messages until
// ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.listener.Start(ctx)
	for {
		msg, err := b.bus.ConsumeInbound(ctx)
		if err != nil {
			return err
		}
		b.handleInbound(ctx, msg)
	}
}

// Stop terminates the listener and clears all routing state.
func (b *Bridge) Stop() {
	b.listener.Stop()
	b.router.Clear()
}

// Router exposes the session router, mainly for introspection.
func (b *Bridge) Router() *sessions.Router { return b.router }

// Registry exposes the channel registry so the host can start and stop
// the configured channels around Run.
func (b *Bridge) Registry() *channels.Registry { return b.registry }

// handleInbound applies the fast path and dedup gate, then enqueues the
// message on its conversation's chain.
func (b *Bridge) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	// Liveness check: answer directly, without a session or the queue.
	if strings.EqualFold(strings.TrimSpace(msg.Content), "ping") {
		if _, err := b.registry.Send(ctx, msg.ConversationID(), "Pong! ⚡️"); err != nil {
			slog.Error("ping reply failed", "conversation", msg.ConversationID(), "err", err)
		}
		return
	}

	if msg.MessageID != "" && b.seen.Seen(msg.Channel+":"+msg.MessageID) {
		slog.Debug("duplicate message dropped", "conversation", msg.ConversationID(), "messageID", msg.MessageID)
		return
	}

	b.queue.Enqueue(ctx, msg.ConversationID(), func(ctx context.Context) error {
		return b.process(ctx, msg)
	})
}

// process runs inside the conversation queue: resolve the session,
// submit the prompt, and convert any failure into exactly one short
// user-visible reply.
func (b *Bridge) process(ctx context.Context, msg bus.InboundMessage) error {
	conversationID := msg.ConversationID()

	b.react(ctx, conversationID, msg.MessageID, true)
	defer b.react(ctx, conversationID, msg.MessageID, false)

	sessionID, err := b.router.Resolve(ctx, conversationID, msg.SenderID)
	if err != nil {
		slog.Error("session resolve failed", "conversation", conversationID, "err", err)
		b.replyError(ctx, conversationID, "Couldn't reach the agent backend. Please try again later.")
		return err
	}

	prompt, err := b.composePrompt(ctx, msg)
	if err != nil {
		if errors.Is(err, ErrContentTooLarge) {
			b.replyError(ctx, conversationID, "That attachment is too large for me to take in.")
			return err
		}
		slog.Error("attachment fetch failed", "conversation", conversationID, "err", err)
		b.replyError(ctx, conversationID, "I couldn't read that attachment.")
		return err
	}

	promptCtx, cancel := context.WithTimeout(ctx, b.promptTimeout)
	defer cancel()
	err = b.client.Prompt(promptCtx, sessionID, prompt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.ErrSessionGone):
		// The binding is stale; drop it so the next message starts fresh.
		b.router.Invalidate(conversationID)
		slog.Warn("session expired", "conversation", conversationID, "session", sessionID)
		b.replyError(ctx, conversationID, "That conversation expired. Send your message again to start a new one.")
		return err
	case errors.Is(promptCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s", ErrResponseTimeout, b.promptTimeout)
		slog.Error("prompt submission timed out", "conversation", conversationID, "session", sessionID)
		b.replyError(ctx, conversationID, "The agent took too long to accept that message.")
		return err
	default:
		slog.Error("prompt submission failed", "conversation", conversationID, "session", sessionID, "err", err)
		b.replyError(ctx, conversationID, "Something went wrong handling that message.")
		return err
	}
}

// composePrompt folds attachment summaries into the prompt text.
// Attachment bytes are fetched only to enforce the size ceiling and
// report what arrived; the content itself stays with the platform URL.
func (b *Bridge) composePrompt(ctx context.Context, msg bus.InboundMessage) (string, error) {
	if len(msg.Attachments) == 0 {
		return msg.Content, nil
	}
	var sb strings.Builder
	sb.WriteString(msg.Content)
	for _, att := range msg.Attachments {
		data, err := FetchAttachment(ctx, b.httpClient, att.URL, b.maxAttachment)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "\n[attachment: %s, %s, %d bytes, %s]", att.Type, att.MimeType, len(data), att.URL)
	}
	return sb.String(), nil
}

// react toggles the processing indicator, best effort.
func (b *Bridge) react(ctx context.Context, conversationID, messageID string, add bool) {
	if messageID == "" {
		return
	}
	if err := b.registry.React(ctx, conversationID, messageID, processingReaction, add); err != nil {
		slog.Debug("reaction failed", "conversation", conversationID, "err", err)
	}
}

// replyError sends one short diagnostic to the conversation. Internal
// detail stays in the logs, never in the platform message.
func (b *Bridge) replyError(ctx context.Context, conversationID, text string) {
	if _, err := b.registry.Send(ctx, conversationID, text); err != nil {
		slog.Error("error reply failed", "conversation", conversationID, "err", err)
	}
}

// onFragment feeds backend content into the stream buffer.
func (b *Bridge) onFragment(conversationID string, ev backend.Event) {
	ctx := context.Background()
	if ev.Type == backend.EventMessageDone {
		b.buffer.Finish(ctx, conversationID, ev)
		return
	}
	b.buffer.Apply(ctx, conversationID, ev)
}

// onSessionGone drops the binding and any in-flight stream state for a
// session the backend reported deleted or errored.
func (b *Bridge) onSessionGone(sessionID string, ev backend.Event) {
	slog.Warn("backend session gone", "session", sessionID, "event", ev.Type)
	b.router.InvalidateBySession(sessionID)
	b.buffer.DropSession(sessionID)
}
