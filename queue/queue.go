// Package queue provides a bounded FIFO queue that is safe for one or more
// producers and consumers. The playback scheduler uses it as its read-ahead
// buffer: worker pool tasks push, the pacing loop peeks and pops.
package queue

import (
	"errors"
	"sync"
)

// ErrInvalidCapacity is returned by New for a non-positive capacity.
var ErrInvalidCapacity = errors.New("queue capacity must be positive")

// Bounded is a fixed-capacity FIFO backed by a ring buffer.
//
// The internal lock is held only for the duration of a single operation.
type Bounded[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	size  int
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) (*Bounded[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Bounded[T]{items: make([]T, capacity)}, nil
}

// Push appends v to the tail. It returns false if the queue is full.
func (q *Bounded[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.items) {
		return false
	}
	q.items[(q.head+q.size)%len(q.items)] = v
	q.size++
	return true
}

// TryPop removes and returns the head item, if any.
func (q *Bounded[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return v, true
}

// Peek returns the head item without removing it.
func (q *Bounded[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

// PopIf removes the head item when pred returns true for it. The predicate
// runs under the queue lock and must not call back into the queue.
func (q *Bounded[T]) PopIf(pred func(T) bool) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 || !pred(q.items[q.head]) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return v, true
}

// Len returns the current depth.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *Bounded[T]) Cap() int {
	return len(q.items)
}

// Clear drops every queued item and returns how many were removed.
func (q *Bounded[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.size
	var zero T
	for i := 0; i < q.size; i++ {
		q.items[(q.head+i)%len(q.items)] = zero
	}
	q.head = 0
	q.size = 0
	return n
}
