package bqueue

import (
	"context"
	"time"
)

// Queue is a bounded FIFO. Len never exceeds Cap.
type Queue[T any] struct {
	items chan T
}

// New returns a queue holding at most capacity items. Capacities below one are
// raised to one.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{items: make(chan T, capacity)}
}

// Put appends item, blocking until a slot is free. It only gives up when ctx
// is cancelled while waiting.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	select {
	case q.items <- item:
		return nil
	default:
	}
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get removes the oldest item. It reports false if nothing arrived within
// timeout; a non-positive timeout makes it a non-blocking poll.
func (q *Queue[T]) Get(timeout time.Duration) (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
	}
	if timeout <= 0 {
		var zero T
		return zero, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item := <-q.items:
		return item, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// Len reports current occupancy. It is a snapshot for diagnostics.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap reports the fixed capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}
