package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coopco/chatbridge/internal/bus"
)

// ErrUnknownChannel means an outbound action targeted a channel key
// with no registered channel.
var ErrUnknownChannel = errors.New("no channel registered")

// Registry holds the live channels keyed by name and routes outbound
// actions to the channel owning the conversation. It does not retry
// network failures; channel errors propagate to the caller unchanged.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Put stores ch under its name, replacing any prior channel for that
// name. The new instance becomes authoritative immediately.
func (r *Registry) Put(ch Channel) {
	r.mu.Lock()
	if prev, ok := r.channels[ch.Name()]; ok && prev != ch {
		slog.Info("channel replaced", "channel", ch.Name())
	}
	r.channels[ch.Name()] = ch
	r.mu.Unlock()
}

// Add creates a channel from its registered factory and stores it.
func (r *Registry) Add(name string, cfgJSON json.RawMessage, msgBus *bus.MessageBus) error {
	factory, ok := GetFactory(name)
	if !ok {
		return fmt.Errorf("no factory registered for channel %q", name)
	}
	ch, err := factory(cfgJSON, msgBus)
	if err != nil {
		return fmt.Errorf("failed to create channel %q: %w", name, err)
	}
	r.Put(ch)
	return nil
}

// Get returns the channel registered under name.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names returns the names of all live channels.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// StartAll starts every registered channel.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	chs := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chs = append(chs, ch)
	}
	r.mu.RUnlock()

	for _, ch := range chs {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("failed to start channel %q: %w", ch.Name(), err)
		}
	}
	return nil
}

// StopAll stops every registered channel, returning the first error.
func (r *Registry) StopAll() error {
	r.mu.RLock()
	chs := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chs = append(chs, ch)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, ch := range chs {
		if err := ch.Stop(); err != nil {
			slog.Error("failed to stop channel", "channel", ch.Name(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// resolve splits a conversation id and looks up its owning channel.
func (r *Registry) resolve(conversationID string) (Channel, string, error) {
	name, chatID := bus.SplitConversationID(conversationID)
	ch, ok := r.Get(name)
	if !ok {
		return nil, "", fmt.Errorf("%w for %q", ErrUnknownChannel, name)
	}
	return ch, chatID, nil
}

// Send routes a send to the channel owning conversationID.
func (r *Registry) Send(ctx context.Context, conversationID, text string) (string, error) {
	ch, chatID, err := r.resolve(conversationID)
	if err != nil {
		return "", err
	}
	return ch.Send(ctx, chatID, text)
}

// Edit routes an edit to the channel owning conversationID.
func (r *Registry) Edit(ctx context.Context, conversationID, messageID, text string) error {
	ch, chatID, err := r.resolve(conversationID)
	if err != nil {
		return err
	}
	return ch.Edit(ctx, chatID, messageID, text)
}

// React routes a reaction to the channel owning conversationID. A
// no-op for channels without reaction support.
func (r *Registry) React(ctx context.Context, conversationID, messageID, name string, add bool) error {
	ch, chatID, err := r.resolve(conversationID)
	if err != nil {
		return err
	}
	reactor, ok := ch.(Reactor)
	if !ok {
		return nil
	}
	if add {
		return reactor.AddReaction(ctx, chatID, messageID, name)
	}
	return reactor.RemoveReaction(ctx, chatID, messageID, name)
}

// The process-wide registry. A hosting runtime may re-invoke bootstrap
// within one process lifetime, so the accessor is get-or-create and
// Reset exists for explicit teardown.
var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide Registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// ResetDefault discards the process-wide Registry. The next Default
// call creates a fresh one.
func ResetDefault() {
	defaultMu.Lock()
	defaultRegistry = nil
	defaultMu.Unlock()
}
