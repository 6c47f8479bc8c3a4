package channels

import "testing"

func TestTelegramStopTwice(t *testing.T) {
	c := &TelegramChannel{stopCh: make(chan struct{})}

	if err := c.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	// A second Stop must not panic on the already-closed channel.
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	select {
	case <-c.stopCh:
	default:
		t.Fatal("stopCh not closed")
	}
}
