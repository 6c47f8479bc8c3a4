package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Listener states.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	defaultBackoffBase = 5 * time.Second
	defaultBackoffMax  = 60 * time.Second
)

// Hooks receives demultiplexed events from the Listener.
type Hooks struct {
	// LookupConversation maps a backend session id to its owning
	// conversation id (the session router's reverse mapping).
	LookupConversation func(sessionID string) (string, bool)
	// OnFragment is called for content fragments whose session resolved
	// to a conversation.
	OnFragment func(conversationID string, ev Event)
	// OnSessionGone is called for session.deleted / session.error.
	OnSessionGone func(sessionID string, ev Event)
}

// Listener holds the single long-lived subscription to the backend's
// event stream and recovers it with exponential backoff. There is one
// Listener per process; Start is idempotent and Stop is terminal.
type Listener struct {
	client Client
	hooks  Hooks

	backoffBase time.Duration
	backoffMax  time.Duration

	mu      sync.Mutex
	state   State
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewListener creates a stopped listener around client.
func NewListener(client Client, hooks Hooks) *Listener {
	return &Listener{
		client:      client,
		hooks:       hooks,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		state:       StateDisconnected,
	}
}

// State returns the current connection state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Start begins consuming the event stream in the background. Calling
// Start on a running or stopped listener is a no-op.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.state == StateStopped {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.started = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx)
}

// Stop terminates the listener. No reconnect attempts are made after
// Stop; the listener cannot be restarted.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return
	}
	l.state = StateStopped
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// stopped reports whether Stop was called. Reconnect decisions check
// this at every suspension point.
func (l *Listener) stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateStopped
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	attempt := 0
	for {
		if l.stopped() || ctx.Err() != nil {
			l.markStopped()
			return
		}

		l.setStateUnlessStopped(StateConnecting)
		stream, err := l.client.SubscribeEvents(ctx)
		if err != nil {
			l.setStateUnlessStopped(StateDisconnected)
			delay := l.backoff(attempt)
			attempt++
			slog.Warn("event stream connect failed", "attempt", attempt, "retryIn", delay, "err", err)
			if !sleepCtx(ctx, delay) {
				l.markStopped()
				return
			}
			continue
		}

		// Successful connect resets the backoff counter.
		attempt = 0
		l.setStateUnlessStopped(StateStreaming)
		slog.Info("event stream connected")

		err = l.consume(ctx, stream)
		stream.Close()
		if l.stopped() || ctx.Err() != nil {
			l.markStopped()
			return
		}
		l.setStateUnlessStopped(StateDisconnected)
		delay := l.backoff(attempt)
		attempt++
		slog.Warn("event stream lost", "retryIn", delay, "err", err)
		if !sleepCtx(ctx, delay) {
			l.markStopped()
			return
		}
	}
}

// consume reads events until the stream fails or ctx is done.
func (l *Listener) consume(ctx context.Context, stream EventStream) error {
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		l.route(ev)
	}
}

// route demultiplexes one event by session id.
func (l *Listener) route(ev Event) {
	switch {
	case ev.IsFragment():
		conversationID, ok := l.hooks.LookupConversation(ev.SessionID)
		if !ok {
			slog.Debug("fragment for unknown session", "session", ev.SessionID)
			return
		}
		l.hooks.OnFragment(conversationID, ev)
	case ev.Type == EventSessionDeleted, ev.Type == EventSessionError:
		l.hooks.OnSessionGone(ev.SessionID, ev)
	default:
		slog.Debug("backend event", "type", ev.Type, "session", ev.SessionID, "detail", ev.Detail)
	}
}

// backoff returns min(base*(attempt+1), max).
func (l *Listener) backoff(attempt int) time.Duration {
	d := l.backoffBase * time.Duration(attempt+1)
	if d > l.backoffMax {
		d = l.backoffMax
	}
	return d
}

func (l *Listener) markStopped() {
	l.mu.Lock()
	l.state = StateStopped
	l.mu.Unlock()
}

func (l *Listener) setStateUnlessStopped(s State) {
	l.mu.Lock()
	if l.state != StateStopped {
		l.state = s
	}
	l.mu.Unlock()
}

// sleepCtx sleeps for d, returning false if ctx finished first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
