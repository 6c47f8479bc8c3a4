package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/coopco/chatbridge/internal/bus"
)

func init() {
	Register("slack", newSlackChannel)
}

type slackConfig struct {
	BotToken     string   `json:"botToken"`
	AppToken     string   `json:"appToken"`
	AllowedUsers []string `json:"allowedUsers"`
}

// SlackChannel bridges Slack via socket mode. The message timestamp
// doubles as the platform message id for edits.
type SlackChannel struct {
	client       *slack.Client
	socketClient *socketmode.Client
	bus          *bus.MessageBus
	allowedUsers map[string]bool
}

func newSlackChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var scfg slackConfig
	if err := json.Unmarshal(cfg, &scfg); err != nil {
		return nil, fmt.Errorf("failed to parse slack config: %w", err)
	}
	allowed := make(map[string]bool, len(scfg.AllowedUsers))
	for _, u := range scfg.AllowedUsers {
		allowed[u] = true
	}
	client := slack.New(scfg.BotToken, slack.OptionAppLevelToken(scfg.AppToken))
	return &SlackChannel{
		client:       client,
		socketClient: socketmode.New(client),
		bus:          msgBus,
		allowedUsers: allowed,
	}, nil
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	go func() {
		for evt := range c.socketClient.Events {
			if evt.Type != socketmode.EventTypeEventsAPI {
				if evt.Request != nil {
					c.socketClient.Ack(*evt.Request)
				}
				continue
			}
			eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				c.socketClient.Ack(*evt.Request)
				continue
			}
			c.socketClient.Ack(*evt.Request)
			if eventsAPI.Type != slackevents.CallbackEvent {
				continue
			}
			inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
			if !ok {
				continue
			}
			// skip bot messages and edits of our own output
			if inner.BotID != "" || inner.SubType != "" {
				continue
			}
			if !c.IsAllowed(inner.User) {
				slog.Warn("slack: message from disallowed user", "user", inner.User)
				continue
			}
			c.bus.PublishInbound(bus.InboundMessage{
				Channel:   "slack",
				SenderID:  inner.User,
				ChatID:    inner.Channel,
				MessageID: inner.TimeStamp,
				Content:   inner.Text,
			})
		}
	}()
	go func() {
		if err := c.socketClient.RunContext(ctx); err != nil && ctx.Err() == nil {
			slog.Error("slack: socket mode terminated", "err", err)
		}
	}()
	return nil
}

func (c *SlackChannel) Stop() error { return nil }

func (c *SlackChannel) Send(ctx context.Context, chatID, text string) (string, error) {
	_, ts, err := c.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

func (c *SlackChannel) Edit(ctx context.Context, chatID, messageID, text string) error {
	if _, _, _, err := c.client.UpdateMessageContext(ctx, chatID, messageID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: update message: %w", err)
	}
	return nil
}

// AddReaction marks a user's message with an emoji reaction.
func (c *SlackChannel) AddReaction(ctx context.Context, chatID, messageID, name string) error {
	return c.client.AddReactionContext(ctx, name, slack.ItemRef{Channel: chatID, Timestamp: messageID})
}

func (c *SlackChannel) RemoveReaction(ctx context.Context, chatID, messageID, name string) error {
	return c.client.RemoveReactionContext(ctx, name, slack.ItemRef{Channel: chatID, Timestamp: messageID})
}

func (c *SlackChannel) IsAllowed(senderID string) bool {
	if len(c.allowedUsers) == 0 {
		return true
	}
	return c.allowedUsers[senderID]
}
