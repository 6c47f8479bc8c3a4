package channels

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/coopco/chatbridge/internal/bus"
)

// mockChannel is a test double for Channel.
type mockChannel struct {
	name    string
	mu      sync.Mutex
	sent    []string
	edits   []string
	started bool
	stopped bool
	sendErr error
}

func (m *mockChannel) Name() string { return m.name }
func (m *mockChannel) Start(_ context.Context) error {
	m.started = true
	return nil
}
func (m *mockChannel) Stop() error {
	m.stopped = true
	return nil
}
func (m *mockChannel) Send(_ context.Context, chatID, text string) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, chatID+"/"+text)
	return "ext-1", nil
}
func (m *mockChannel) Edit(_ context.Context, chatID, messageID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, chatID+"/"+messageID+"/"+text)
	return nil
}
func (m *mockChannel) IsAllowed(_ string) bool { return true }

// reactingChannel additionally implements Reactor.
type reactingChannel struct {
	mockChannel
	reactions []string
}

func (m *reactingChannel) AddReaction(_ context.Context, chatID, messageID, name string) error {
	m.reactions = append(m.reactions, "+"+name)
	return nil
}

func (m *reactingChannel) RemoveReaction(_ context.Context, chatID, messageID, name string) error {
	m.reactions = append(m.reactions, "-"+name)
	return nil
}

func TestRegisterAndGetFactory(t *testing.T) {
	const name = "test-channel-reg"
	Register(name, func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
		return &mockChannel{name: name}, nil
	})

	factory, ok := GetFactory(name)
	if !ok {
		t.Fatalf("expected factory for %q to be registered", name)
	}
	if factory == nil {
		t.Fatal("expected non-nil factory")
	}
}

func TestRegistryAdd(t *testing.T) {
	const name = "test-channel-add"
	Register(name, func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
		return &mockChannel{name: name}, nil
	})

	r := NewRegistry()
	if err := r.Add(name, json.RawMessage(`{}`), bus.NewMessageBus(16)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, ok := r.Get(name); !ok {
		t.Fatal("added channel not retrievable")
	}
}

func TestPutReplacesPriorChannel(t *testing.T) {
	r := NewRegistry()
	first := &mockChannel{name: "telegram"}
	second := &mockChannel{name: "telegram"}

	r.Put(first)
	r.Put(second)

	got, ok := r.Get("telegram")
	if !ok {
		t.Fatal("channel missing after replace")
	}
	if got != second {
		t.Fatal("Put must make the newest instance authoritative")
	}
	if len(r.Names()) != 1 {
		t.Fatalf("names = %v, want single entry", r.Names())
	}
}

func TestDispatchRouting(t *testing.T) {
	r := NewRegistry()
	tg := &mockChannel{name: "telegram"}
	dc := &mockChannel{name: "discord"}
	r.Put(tg)
	r.Put(dc)
	ctx := context.Background()

	id, err := r.Send(ctx, "telegram:100", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "ext-1" {
		t.Fatalf("Send id = %q", id)
	}
	if err := r.Edit(ctx, "discord:42", "ext-9", "edited"); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	if len(tg.sent) != 1 || tg.sent[0] != "100/hello" {
		t.Errorf("telegram sent = %v", tg.sent)
	}
	if len(dc.edits) != 1 || dc.edits[0] != "42/ext-9/edited" {
		t.Errorf("discord edits = %v", dc.edits)
	}
}

func TestDispatchUnknownChannel(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Send(context.Background(), "matrix:1", "hi"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("error = %v, want ErrUnknownChannel", err)
	}
	if err := r.Edit(context.Background(), "matrix:1", "m", "hi"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("error = %v, want ErrUnknownChannel", err)
	}
}

func TestDispatchPropagatesChannelError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("network down")
	r.Put(&mockChannel{name: "telegram", sendErr: boom})

	if _, err := r.Send(context.Background(), "telegram:1", "hi"); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want channel error surfaced unchanged", err)
	}
}

func TestReactNoopWithoutReactor(t *testing.T) {
	r := NewRegistry()
	r.Put(&mockChannel{name: "telegram"})

	if err := r.React(context.Background(), "telegram:1", "m1", "eyes", true); err != nil {
		t.Fatalf("React on non-reactor channel: %v", err)
	}
}

func TestReactDispatch(t *testing.T) {
	r := NewRegistry()
	rc := &reactingChannel{mockChannel: mockChannel{name: "discord"}}
	r.Put(rc)
	ctx := context.Background()

	if err := r.React(ctx, "discord:1", "m1", "eyes", true); err != nil {
		t.Fatalf("React add: %v", err)
	}
	if err := r.React(ctx, "discord:1", "m1", "eyes", false); err != nil {
		t.Fatalf("React remove: %v", err)
	}
	if len(rc.reactions) != 2 || rc.reactions[0] != "+eyes" || rc.reactions[1] != "-eyes" {
		t.Fatalf("reactions = %v", rc.reactions)
	}
}

func TestStartAllStopAll(t *testing.T) {
	r := NewRegistry()
	a := &mockChannel{name: "a"}
	b := &mockChannel{name: "b"}
	r.Put(a)
	r.Put(b)

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !a.started || !b.started {
		t.Fatal("not all channels started")
	}
	if err := r.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if !a.stopped || !b.stopped {
		t.Fatal("not all channels stopped")
	}
}

func TestDefaultSingleton(t *testing.T) {
	ResetDefault()
	t.Cleanup(ResetDefault)

	first := Default()
	second := Default()
	if first != second {
		t.Fatal("Default must return the same registry for repeated bootstrap")
	}

	ResetDefault()
	if Default() == first {
		t.Fatal("ResetDefault must discard the prior registry")
	}
}
