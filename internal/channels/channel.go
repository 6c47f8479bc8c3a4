package channels

import (
	"context"
	"encoding/json"

	"github.com/coopco/chatbridge/internal/bus"
)

// Channel is the interface all chat platform channels must implement.
// Inbound messages are published to the bus; outbound calls return the
// platform's message id so streamed responses can be edited in place.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	// Send posts text to a chat and returns the platform message id.
	Send(ctx context.Context, chatID, text string) (string, error)
	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, chatID, messageID, text string) error
	IsAllowed(senderID string) bool
}

// Reactor is implemented by channels that can mark a user's message
// with a reaction, used as a lightweight "processing" indicator.
type Reactor interface {
	AddReaction(ctx context.Context, chatID, messageID, name string) error
	RemoveReaction(ctx context.Context, chatID, messageID, name string) error
}

// ChannelFactory creates a Channel from JSON config and a MessageBus.
type ChannelFactory func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error)

var factories = map[string]ChannelFactory{}

// Register adds a channel factory under name.
func Register(name string, factory ChannelFactory) {
	factories[name] = factory
}

// GetFactory returns the factory for a channel name.
func GetFactory(name string) (ChannelFactory, bool) {
	f, ok := factories[name]
	return f, ok
}

// RegisteredNames returns all registered channel names.
func RegisteredNames() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
