package bus

import (
	"context"
)

// MessageBus carries inbound messages from channels to the bridge loop.
type MessageBus struct {
	inbound chan InboundMessage
}

// NewMessageBus creates a new MessageBus with the given buffer size.
// If bufSize is 0, defaults to 100.
func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &MessageBus{
		inbound: make(chan InboundMessage, bufSize),
	}
}

// PublishInbound sends an inbound message onto the bus.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until an inbound message is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	select {
	case msg, ok := <-b.inbound:
		if !ok {
			return InboundMessage{}, context.Canceled
		}
		return msg, nil
	case <-ctx.Done():
		return InboundMessage{}, ctx.Err()
	}
}

// Close closes the inbound channel.
func (b *MessageBus) Close() {
	close(b.inbound)
}
