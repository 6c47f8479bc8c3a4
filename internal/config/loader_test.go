package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadFromReader(t *testing.T) {
	jsonData := `{
		"backend": {
			"url": "ws://gateway.local:9090/rpc",
			"token": "secret-token"
		},
		"bridge": {
			"flushIntervalMs": 500,
			"dedupCapacity": 100
		},
		"channels": {
			"telegram": {
				"token": "tg-token",
				"allowedUsers": ["alice"]
			},
			"slack": {
				"botToken": "xoxb-1",
				"appToken": "xapp-1"
			}
		}
	}`

	cfg, err := LoadFromReader(strings.NewReader(jsonData))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if cfg.Backend.URL != "ws://gateway.local:9090/rpc" {
		t.Errorf("expected backend url ws://gateway.local:9090/rpc, got %s", cfg.Backend.URL)
	}
	if cfg.Bridge.FlushIntervalMs != 500 {
		t.Errorf("expected flushIntervalMs 500, got %d", cfg.Bridge.FlushIntervalMs)
	}
	if cfg.Bridge.DedupCapacity != 100 {
		t.Errorf("expected dedupCapacity 100, got %d", cfg.Bridge.DedupCapacity)
	}
	if cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("expected telegram token tg-token, got %s", cfg.Channels.Telegram.Token)
	}
	if cfg.Channels.Slack.AppToken != "xapp-1" {
		t.Errorf("expected slack appToken xapp-1, got %s", cfg.Channels.Slack.AppToken)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend.URL != "ws://127.0.0.1:8080/rpc" {
		t.Errorf("expected backend url ws://127.0.0.1:8080/rpc, got %s", cfg.Backend.URL)
	}
	if cfg.Bridge.FlushIntervalMs != 800 {
		t.Errorf("expected flushIntervalMs 800, got %d", cfg.Bridge.FlushIntervalMs)
	}
	if cfg.Bridge.DedupCapacity != 2000 {
		t.Errorf("expected dedupCapacity 2000, got %d", cfg.Bridge.DedupCapacity)
	}
	if cfg.Bridge.PromptTimeoutSecs != 90 {
		t.Errorf("expected promptTimeoutSecs 90, got %d", cfg.Bridge.PromptTimeoutSecs)
	}
	if cfg.Bridge.MaxAttachmentBytes != 10<<20 {
		t.Errorf("expected maxAttachmentBytes %d, got %d", 10<<20, cfg.Bridge.MaxAttachmentBytes)
	}
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("CHATBRIDGE_BACKEND_TOKEN", "env-token-123")
	defer os.Unsetenv("CHATBRIDGE_BACKEND_TOKEN")

	jsonData := `{
		"backend": {
			"token": "file-token-456"
		}
	}`

	cfg, err := LoadFromReader(strings.NewReader(jsonData))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if cfg.Backend.Token != "env-token-123" {
		t.Errorf("expected env override env-token-123, got %s", cfg.Backend.Token)
	}
}

func TestMissingFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestPartialConfig(t *testing.T) {
	jsonData := `{
		"channels": {
			"discord": {
				"token": "dc-token"
			}
		}
	}`

	cfg, err := LoadFromReader(strings.NewReader(jsonData))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if cfg.Channels.Discord.Token != "dc-token" {
		t.Errorf("expected discord token dc-token, got %s", cfg.Channels.Discord.Token)
	}

	// Defaults survive for sections the file omits.
	if cfg.Backend.URL != "ws://127.0.0.1:8080/rpc" {
		t.Errorf("expected default backend url, got %s", cfg.Backend.URL)
	}
	if cfg.Bridge.DedupCapacity != 2000 {
		t.Errorf("expected default dedupCapacity 2000, got %d", cfg.Bridge.DedupCapacity)
	}
}
