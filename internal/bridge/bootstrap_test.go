package bridge

import (
	"testing"
	"time"

	"github.com/coopco/chatbridge/internal/config"
)

func TestFromConfigDefaults(t *testing.T) {
	b, err := FromConfig(config.DefaultConfig())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if got := b.Registry().Names(); len(got) != 0 {
		t.Fatalf("no credentials configured, expected no channels, got %v", got)
	}
	if b.promptTimeout != 90*time.Second {
		t.Errorf("promptTimeout = %v", b.promptTimeout)
	}
	if b.maxAttachment != 10<<20 {
		t.Errorf("maxAttachment = %d", b.maxAttachment)
	}
}

func TestFromConfigTunables(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bridge.FlushIntervalMs = 250
	cfg.Bridge.PromptTimeoutSecs = 10
	cfg.Bridge.MaxAttachmentBytes = 1024

	b, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if b.promptTimeout != 10*time.Second {
		t.Errorf("promptTimeout = %v", b.promptTimeout)
	}
	if b.maxAttachment != 1024 {
		t.Errorf("maxAttachment = %d", b.maxAttachment)
	}
}
