// Package memory provides a pending queue implementation for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/welanie/dealpipe/internal/product"
)

// Queue is an in-memory pending queue ordered by capture time. Consumed
// messages are retained as an audit trail; deleted ones are gone.
type Queue struct {
	mu       sync.Mutex
	messages map[string]product.RawMessage
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{messages: make(map[string]product.RawMessage)}
}

// Enqueue adds a raw message. The capture collaborator calls this.
func (q *Queue) Enqueue(_ context.Context, msg product.RawMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages[msg.ID] = msg
	return nil
}

// FetchOldestUnconsumed returns the unconsumed message with the earliest
// capture time, or product.ErrNoPending when none exists.
func (q *Queue) FetchOldestUnconsumed(_ context.Context) (product.RawMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var pending []product.RawMessage
	for _, msg := range q.messages {
		if !msg.Consumed {
			pending = append(pending, msg)
		}
	}
	if len(pending) == 0 {
		return product.RawMessage{}, product.ErrNoPending
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CapturedAt.Equal(pending[j].CapturedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CapturedAt.Before(pending[j].CapturedAt)
	})
	return pending[0], nil
}

// MarkConsumed flips the consumed flag, keeping the message around.
func (q *Queue) MarkConsumed(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.messages[id]
	if !ok {
		return fmt.Errorf("message %s not found", id)
	}
	msg.Consumed = true
	q.messages[id] = msg
	return nil
}

// Delete removes the message entirely.
func (q *Queue) Delete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.messages, id)
	return nil
}

// Len reports how many messages are held, consumed included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
