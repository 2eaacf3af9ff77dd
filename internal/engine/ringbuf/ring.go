// Package ringbuf provides a fixed-capacity FIFO buffer with O(1) appends.
package ringbuf

import "sync"

// Ring is a fixed-size circular buffer. When full, Push overwrites the oldest element.
// Safe for concurrent use.
type Ring[T any] struct {
	data     []T
	capacity int
	head     int // index of the next write
	size     int
	mu       sync.RWMutex
}

// New creates a ring of the given capacity (minimum 1).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[r.head] = v
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Items returns a copy of the elements, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.itemsLocked()
}

// Last returns a copy of the newest n elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.itemsLocked()
	if n >= len(all) || n < 0 {
		return all
	}
	return all[len(all)-n:]
}

// Newest returns the most recently pushed element.
func (r *Ring[T]) Newest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.data[(r.head-1+r.capacity)%r.capacity], true
}

func (r *Ring[T]) itemsLocked() []T {
	if r.size == 0 {
		return nil
	}
	out := make([]T, 0, r.size)
	if r.size < r.capacity {
		return append(out, r.data[:r.head]...)
	}
	// full: head points at the oldest element
	out = append(out, r.data[r.head:]...)
	return append(out, r.data[:r.head]...)
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return r.capacity }

// Reset drops every element.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head = 0
	r.size = 0
}
