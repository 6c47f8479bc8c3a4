package config

// Config is the top-level configuration
type Config struct {
	Backend  BackendConfig  `json:"backend"`
	Bridge   BridgeConfig   `json:"bridge"`
	Channels ChannelsConfig `json:"channels"`
}

// BackendConfig points at the agent backend's websocket gateway.
type BackendConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// BridgeConfig holds the routing engine's tunables.
type BridgeConfig struct {
	FlushIntervalMs    int   `json:"flushIntervalMs"`
	DedupCapacity      int   `json:"dedupCapacity"`
	PromptTimeoutSecs  int   `json:"promptTimeoutSecs"`
	MaxAttachmentBytes int64 `json:"maxAttachmentBytes"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Slack    SlackConfig    `json:"slack"`
	DingTalk DingTalkConfig `json:"dingtalk"`
}

type TelegramConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

type DiscordConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

type SlackConfig struct {
	BotToken     string   `json:"botToken"`
	AppToken     string   `json:"appToken"`
	AllowedUsers []string `json:"allowedUsers"`
}

type DingTalkConfig struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	WebhookPort  int      `json:"webhookPort"`
	AllowedUsers []string `json:"allowedUsers"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL: "ws://127.0.0.1:8080/rpc",
		},
		Bridge: BridgeConfig{
			FlushIntervalMs:    800,
			DedupCapacity:      2000,
			PromptTimeoutSecs:  90,
			MaxAttachmentBytes: 10 << 20,
		},
	}
}
