package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Load loads config from the default path (~/.chatbridge/config.json).
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromFile(filepath.Join(home, ".chatbridge", "config.json"))
}

// LoadFromFile loads config from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader loads config from an io.Reader, applying defaults and env overrides.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies CHATBRIDGE_-prefixed environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	envMap := map[string]*string{
		"CHATBRIDGE_BACKEND_URL":                    &cfg.Backend.URL,
		"CHATBRIDGE_BACKEND_TOKEN":                  &cfg.Backend.Token,
		"CHATBRIDGE_CHANNELS_TELEGRAM_TOKEN":        &cfg.Channels.Telegram.Token,
		"CHATBRIDGE_CHANNELS_DISCORD_TOKEN":         &cfg.Channels.Discord.Token,
		"CHATBRIDGE_CHANNELS_SLACK_BOTTOKEN":        &cfg.Channels.Slack.BotToken,
		"CHATBRIDGE_CHANNELS_SLACK_APPTOKEN":        &cfg.Channels.Slack.AppToken,
		"CHATBRIDGE_CHANNELS_DINGTALK_CLIENTID":     &cfg.Channels.DingTalk.ClientID,
		"CHATBRIDGE_CHANNELS_DINGTALK_CLIENTSECRET": &cfg.Channels.DingTalk.ClientSecret,
	}

	for env, ptr := range envMap {
		if val := os.Getenv(env); val != "" {
			*ptr = val
		}
	}
}
