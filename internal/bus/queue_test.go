package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
	}{
		{
			name: "basic message",
			msg:  InboundMessage{Channel: "telegram", SenderID: "u1", ChatID: "c1", MessageID: "m1", Content: "hello"},
		},
		{
			name: "message with attachment",
			msg: InboundMessage{
				Channel: "discord", SenderID: "u2", ChatID: "c2", MessageID: "m2", Content: "world",
				Attachments: []Attachment{{Type: "image", URL: "https://example.com/a.png"}},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewMessageBus(10)
			b.PublishInbound(tc.msg)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			got, err := b.ConsumeInbound(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Channel != tc.msg.Channel || got.Content != tc.msg.Content || got.MessageID != tc.msg.MessageID {
				t.Errorf("got %+v, want %+v", got, tc.msg)
			}
		})
	}
}

func TestConsumeInboundCancelled(t *testing.T) {
	b := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.ConsumeInbound(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestConversationID(t *testing.T) {
	tests := []struct {
		name    string
		msg     InboundMessage
		want    string
		channel string
		chatID  string
	}{
		{"telegram chat", InboundMessage{Channel: "telegram", ChatID: "12345"}, "telegram:12345", "telegram", "12345"},
		{"slack channel", InboundMessage{Channel: "slack", ChatID: "C0AB1CD"}, "slack:C0AB1CD", "slack", "C0AB1CD"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.msg.ConversationID()
			if got != tc.want {
				t.Fatalf("ConversationID() = %q, want %q", got, tc.want)
			}
			ch, chat := SplitConversationID(got)
			if ch != tc.channel || chat != tc.chatID {
				t.Errorf("SplitConversationID(%q) = (%q, %q), want (%q, %q)", got, ch, chat, tc.channel, tc.chatID)
			}
		})
	}
}

func TestSplitConversationIDMalformed(t *testing.T) {
	if ch, chat := SplitConversationID("no-separator"); ch != "" || chat != "" {
		t.Fatalf("expected empty parts for malformed key, got (%q, %q)", ch, chat)
	}
}
