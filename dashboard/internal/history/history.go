// Package history provides the bounded, newest-first record buffer used for
// the dashboard's job and error logs.
package history

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the number of records kept per history.
const DefaultCapacity = 5

// Buffer is a fixed-capacity history ordered newest-first. Pushing onto a
// full buffer evicts the oldest record (the last element).
//
// Readers never observe a partially updated buffer: every Push builds a new
// slice and publishes it with a single atomic store.
type Buffer[T any] struct {
	mu       sync.Mutex // serialises writers
	items    atomic.Pointer[[]T]
	capacity int
}

// New returns an empty Buffer holding at most capacity records.
// A non-positive capacity selects DefaultCapacity.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer[T]{capacity: capacity}
	empty := make([]T, 0)
	b.items.Store(&empty)
	return b
}

// Push prepends v and drops the oldest record if the buffer was full.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.items.Load()
	n := len(cur) + 1
	if n > b.capacity {
		n = b.capacity
	}
	next := make([]T, n)
	next[0] = v
	copy(next[1:], cur)
	b.items.Store(&next)
}

// List returns a copy of the records, newest first.
func (b *Buffer[T]) List() []T {
	cur := *b.items.Load()
	out := make([]T, len(cur))
	copy(out, cur)
	return out
}

// Len returns the number of records currently held.
func (b *Buffer[T]) Len() int { return len(*b.items.Load()) }

// Cap returns the buffer's capacity.
func (b *Buffer[T]) Cap() int { return b.capacity }
