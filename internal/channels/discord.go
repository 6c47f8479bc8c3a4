package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/coopco/chatbridge/internal/bus"
)

func init() {
	Register("discord", newDiscordChannel)
}

type discordConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

// DiscordChannel bridges Discord via the gateway websocket.
type DiscordChannel struct {
	session      *discordgo.Session
	bus          *bus.MessageBus
	allowedUsers map[string]bool
}

func newDiscordChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var dcfg discordConfig
	if err := json.Unmarshal(cfg, &dcfg); err != nil {
		return nil, fmt.Errorf("failed to parse discord config: %w", err)
	}
	session, err := discordgo.New("Bot " + dcfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	allowed := make(map[string]bool, len(dcfg.AllowedUsers))
	for _, u := range dcfg.AllowedUsers {
		allowed[u] = true
	}
	return &DiscordChannel{
		session:      session,
		bus:          msgBus,
		allowedUsers: allowed,
	}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.ID == s.State.User.ID || m.Author.Bot {
			return
		}
		if !c.IsAllowed(m.Author.ID) {
			slog.Warn("discord: message from disallowed user", "user", m.Author.ID)
			return
		}
		c.bus.PublishInbound(bus.InboundMessage{
			Channel:     "discord",
			SenderID:    m.Author.ID,
			ChatID:      m.ChannelID,
			MessageID:   m.ID,
			Content:     m.Content,
			Attachments: discordAttachments(m.Attachments),
		})
	})

	c.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

func discordAttachments(atts []*discordgo.MessageAttachment) []bus.Attachment {
	if len(atts) == 0 {
		return nil
	}
	out := make([]bus.Attachment, 0, len(atts))
	for _, a := range atts {
		out = append(out, bus.Attachment{
			Type:     "file",
			URL:      a.URL,
			MimeType: a.ContentType,
		})
	}
	return out
}

func (c *DiscordChannel) Stop() error {
	return c.session.Close()
}

func (c *DiscordChannel) Send(ctx context.Context, chatID, text string) (string, error) {
	msg, err := c.session.ChannelMessageSend(chatID, text)
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	return msg.ID, nil
}

func (c *DiscordChannel) Edit(ctx context.Context, chatID, messageID, text string) error {
	if _, err := c.session.ChannelMessageEdit(chatID, messageID, text); err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	return nil
}

// Discord's reaction API takes the literal unicode emoji (or name:id
// for custom emoji), not the short name slack uses.
var discordEmoji = map[string]string{
	"eyes":             "👀",
	"thumbsup":         "👍",
	"white_check_mark": "✅",
}

func discordEmojiFor(name string) string {
	if e, ok := discordEmoji[name]; ok {
		return e
	}
	return name
}

// AddReaction marks a user's message with an emoji, used as a
// "processing" indicator.
func (c *DiscordChannel) AddReaction(ctx context.Context, chatID, messageID, name string) error {
	return c.session.MessageReactionAdd(chatID, messageID, discordEmojiFor(name))
}

func (c *DiscordChannel) RemoveReaction(ctx context.Context, chatID, messageID, name string) error {
	return c.session.MessageReactionRemove(chatID, messageID, discordEmojiFor(name), "@me")
}

func (c *DiscordChannel) IsAllowed(senderID string) bool {
	if len(c.allowedUsers) == 0 {
		return true
	}
	return c.allowedUsers[senderID]
}
