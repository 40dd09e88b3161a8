package pipeline

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO shared between stages. All operations take the
// queue's own lock; no operation holds any other pipeline lock.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

// NewQueue constructs an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Enqueue appends item to the tail and wakes one waiting consumer.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// Dequeue removes and returns the head, blocking until an item is available
// or ctx is done.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryDequeue(); ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// TryDequeue removes and returns the head without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	var zero T
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()
	if remaining > 0 {
		// Pass the wakeup on so another blocked consumer sees the backlog.
		q.signal()
	}
	return item, true
}

// Len reports the current depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready returns the wakeup channel. It is only meaningful for a queue with a
// single consumer that drains with TryDequeue after each receive.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}
