package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coopco/chatbridge/internal/backend"
	"github.com/coopco/chatbridge/internal/bus"
	"github.com/coopco/chatbridge/internal/channels"
	"github.com/coopco/chatbridge/internal/config"
)

// FromConfig builds a Bridge from loaded configuration: one bus, one
// channel per configured platform, and a websocket client for the
// backend gateway. Channels without credentials are skipped.
func FromConfig(cfg *config.Config) (*Bridge, error) {
	msgBus := bus.NewMessageBus(0)
	reg := channels.NewRegistry()

	enabled := map[string]any{}
	if cfg.Channels.Telegram.Token != "" {
		enabled["telegram"] = cfg.Channels.Telegram
	}
	if cfg.Channels.Discord.Token != "" {
		enabled["discord"] = cfg.Channels.Discord
	}
	if cfg.Channels.Slack.BotToken != "" {
		enabled["slack"] = cfg.Channels.Slack
	}
	if cfg.Channels.DingTalk.ClientID != "" {
		enabled["dingtalk"] = cfg.Channels.DingTalk
	}
	for name, chCfg := range enabled {
		raw, err := json.Marshal(chCfg)
		if err != nil {
			return nil, fmt.Errorf("marshal %s config: %w", name, err)
		}
		if err := reg.Add(name, raw, msgBus); err != nil {
			return nil, err
		}
		slog.Info("channel configured", "channel", name)
	}

	client := backend.NewGatewayClient(cfg.Backend.URL, cfg.Backend.Token)
	return New(Config{
		Bus:                msgBus,
		Registry:           reg,
		Backend:            client,
		DedupCapacity:      cfg.Bridge.DedupCapacity,
		FlushInterval:      time.Duration(cfg.Bridge.FlushIntervalMs) * time.Millisecond,
		PromptTimeout:      time.Duration(cfg.Bridge.PromptTimeoutSecs) * time.Second,
		MaxAttachmentBytes: cfg.Bridge.MaxAttachmentBytes,
	}), nil
}
