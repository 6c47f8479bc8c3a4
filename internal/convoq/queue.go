// Package convoq serializes inbound message processing per conversation.
// Tasks for the same conversation run strictly in enqueue order, never
// concurrently; distinct conversations are fully independent.
package convoq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Task is one unit of conversation work.
type Task func(ctx context.Context) error

// Queue maintains one FIFO continuation chain per conversation id.
type Queue struct {
	mu    sync.Mutex
	tails map[string]chan struct{} // conversationID -> settled signal of the last enqueued task
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{tails: make(map[string]chan struct{})}
}

// Enqueue schedules task to run after every previously enqueued task for
// conversationID has settled (succeeded or failed). A prior task's failure
// never blocks or fails its successors. The returned channel receives the
// task's result exactly once.
func (q *Queue) Enqueue(ctx context.Context, conversationID string, task Task) <-chan error {
	q.mu.Lock()
	prev := q.tails[conversationID]
	settled := make(chan struct{})
	q.tails[conversationID] = settled
	q.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		defer q.retire(conversationID, settled)
		defer close(settled)

		if prev != nil {
			// Wait unconditionally: starting before the predecessor settles
			// would break the per-conversation mutual exclusion guarantee.
			<-prev
		}

		if err := ctx.Err(); err != nil {
			result <- err
			return
		}

		err := run(ctx, conversationID, task)
		result <- err
	}()
	return result
}

// run executes task, converting a panic into an error so the chain
// keeps moving.
func run(ctx context.Context, conversationID string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("conversation task panicked", "conversation", conversationID, "panic", r)
			err = fmt.Errorf("conversation task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// retire drops the chain entry once the last task has settled and nothing
// was enqueued behind it, so idle conversations hold no memory.
func (q *Queue) retire(conversationID string, settled chan struct{}) {
	q.mu.Lock()
	if q.tails[conversationID] == settled {
		delete(q.tails, conversationID)
	}
	q.mu.Unlock()
}

// Conversations returns the number of conversations with an active chain.
func (q *Queue) Conversations() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
