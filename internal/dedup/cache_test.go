package dedup

import (
	"fmt"
	"testing"
)

func TestSeenTwice(t *testing.T) {
	c := NewCache(10)

	if c.Seen("m1") {
		t.Fatal("first Seen should report false")
	}
	if !c.Seen("m1") {
		t.Fatal("second Seen should report true")
	}
	if !c.Seen("m1") {
		t.Fatal("every later Seen should report true until eviction")
	}
}

func TestCapacityEviction(t *testing.T) {
	c := NewCache(3)

	for i := 0; i < 4; i++ {
		c.Seen(fmt.Sprintf("m%d", i))
	}

	if got := c.Len(); got != 3 {
		t.Fatalf("cache size = %d, want 3", got)
	}
	// m0 is the oldest-inserted and must be the evicted one.
	if c.Seen("m0") {
		t.Error("m0 should have been evicted")
	}
	// m2 and m3 survive. m1 was evicted by the re-insert of m0 above.
	if !c.Seen("m2") || !c.Seen("m3") {
		t.Error("newest entries should survive eviction")
	}
}

func TestNoRefreshOnRead(t *testing.T) {
	c := NewCache(2)

	c.Seen("a")
	c.Seen("b")
	c.Seen("a") // re-seeing must NOT move "a" to the back
	c.Seen("c") // evicts "a", the oldest-inserted

	if c.Seen("a") {
		t.Error("a should have been evicted despite being re-seen")
	}
}

func TestDefaultCapacity(t *testing.T) {
	c := NewCache(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		c.Seen(fmt.Sprintf("m%d", i))
	}
	if got := c.Len(); got != DefaultCapacity {
		t.Fatalf("cache size = %d, want %d", got, DefaultCapacity)
	}
}
