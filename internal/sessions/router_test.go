package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/coopco/chatbridge/internal/backend"
)

type stubBackend struct {
	created atomic.Int64
	fail    bool
}

func (s *stubBackend) CreateSession(ctx context.Context, title string) (string, error) {
	if s.fail {
		return "", errors.New("backend down")
	}
	n := s.created.Add(1)
	return fmt.Sprintf("sess-%d", n), nil
}

func (s *stubBackend) Prompt(ctx context.Context, sessionID, text string) error { return nil }

func (s *stubBackend) SubscribeEvents(ctx context.Context) (backend.EventStream, error) {
	return nil, errors.New("not implemented")
}

func TestResolveIsStable(t *testing.T) {
	r := NewRouter(&stubBackend{})
	ctx := context.Background()

	first, err := r.Resolve(ctx, "telegram:100", "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(ctx, "telegram:100", "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Fatalf("Resolve returned %q then %q, want the same session", first, second)
	}
}

func TestResolveAfterInvalidateCreatesNewSession(t *testing.T) {
	r := NewRouter(&stubBackend{})
	ctx := context.Background()

	first, _ := r.Resolve(ctx, "telegram:100", "u1")
	r.Invalidate("telegram:100")
	second, err := r.Resolve(ctx, "telegram:100", "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first == second {
		t.Fatalf("Resolve after Invalidate returned the same session %q", first)
	}
}

func TestResolveRecordsSender(t *testing.T) {
	r := NewRouter(&stubBackend{})
	ctx := context.Background()

	r.Resolve(ctx, "telegram:100", "u1")
	r.Resolve(ctx, "telegram:100", "u2")

	b, ok := r.Binding("telegram:100")
	if !ok {
		t.Fatal("binding missing")
	}
	if b.SenderID != "u2" {
		t.Fatalf("SenderID = %q, want latest sender u2", b.SenderID)
	}
}

func TestInvalidateBySession(t *testing.T) {
	r := NewRouter(&stubBackend{})
	ctx := context.Background()

	sessionID, _ := r.Resolve(ctx, "discord:42", "u1")

	conv, ok := r.Lookup(sessionID)
	if !ok || conv != "discord:42" {
		t.Fatalf("Lookup(%q) = (%q, %v)", sessionID, conv, ok)
	}

	r.InvalidateBySession(sessionID)
	if _, ok := r.Lookup(sessionID); ok {
		t.Fatal("reverse mapping survived InvalidateBySession")
	}
	if _, ok := r.Binding("discord:42"); ok {
		t.Fatal("binding survived InvalidateBySession")
	}
}

func TestResolveFailurePropagates(t *testing.T) {
	r := NewRouter(&stubBackend{fail: true})

	_, err := r.Resolve(context.Background(), "telegram:100", "u1")
	if !errors.Is(err, ErrSessionInit) {
		t.Fatalf("error = %v, want ErrSessionInit", err)
	}
	if _, ok := r.Binding("telegram:100"); ok {
		t.Fatal("failed creation must not leave a binding")
	}
}

func TestDistinctConversationsGetDistinctSessions(t *testing.T) {
	r := NewRouter(&stubBackend{})
	ctx := context.Background()

	a, _ := r.Resolve(ctx, "telegram:1", "u1")
	b, _ := r.Resolve(ctx, "telegram:2", "u1")
	if a == b {
		t.Fatalf("distinct conversations share session %q", a)
	}
}

func TestClear(t *testing.T) {
	r := NewRouter(&stubBackend{})
	ctx := context.Background()

	sessionID, _ := r.Resolve(ctx, "telegram:1", "u1")
	r.Clear()
	if _, ok := r.Lookup(sessionID); ok {
		t.Fatal("Clear left reverse mappings behind")
	}
}
