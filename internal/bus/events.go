package bus

import "fmt"

// InboundMessage represents a human message received from any channel.
type InboundMessage struct {
	Channel     string       // source channel name (e.g. "telegram", "discord")
	SenderID    string       // sender identifier on the platform
	ChatID      string       // chat/conversation identifier on the platform
	MessageID   string       // platform message identifier, used for dedup
	Content     string       // text content
	Attachments []Attachment // attached media
}

// Attachment is a reference to media attached to an inbound message.
type Attachment struct {
	Type     string // "image", "audio", "video", "file"
	URL      string // URL the content can be fetched from
	MimeType string // MIME type if known
}

// ConversationID returns the routing key identifying one external
// conversation: "channel:chatID". Stable for the life of the chat.
func (m InboundMessage) ConversationID() string {
	return fmt.Sprintf("%s:%s", m.Channel, m.ChatID)
}

// SplitConversationID splits a "channel:chatID" key back into its parts.
// Returns ("", "") if the key is malformed.
func SplitConversationID(conversationID string) (channel, chatID string) {
	for i := 0; i < len(conversationID); i++ {
		if conversationID[i] == ':' {
			return conversationID[:i], conversationID[i+1:]
		}
	}
	return "", ""
}
