// Package dedup tracks recently processed platform message ids so that
// redelivered events (webhook retries, polling overlap) are dropped.
package dedup

import (
	"container/list"
	"sync"
)

// DefaultCapacity bounds the cache when no explicit capacity is given.
const DefaultCapacity = 2000

// Cache is a bounded set of recently seen message ids. Eviction is by
// insertion order only: re-seeing an id does not refresh its position.
// Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // oldest at front
	index    map[string]*list.Element // id -> element in order
}

// NewCache creates a Cache holding at most capacity ids.
// A capacity <= 0 falls back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Seen reports whether id was already recorded. If not, it records id,
// evicting the oldest-inserted entry when over capacity.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[id]; ok {
		return true
	}

	c.index[id] = c.order.PushBack(id)
	if c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(string))
	}
	return false
}

// Len returns the number of ids currently tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
