package util

import "sync"

// Ring is a fixed-capacity ring buffer; the oldest entry is overwritten.
type Ring[T any] struct {
	buf  []T
	head int
	size int
	mu   sync.RWMutex
}

// NewRing creates a ring buffer with the given capacity (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push adds v, evicting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Latest returns the most recent entry.
func (r *Ring[T]) Latest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.head-1+len(r.buf))%len(r.buf)], true
}

// Values returns a copy of all entries, oldest first.
func (r *Ring[T]) Values() []T {
	return r.Last(-1)
}

// Last returns up to n most recent entries, oldest first. n < 0 means all.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n < 0 || n > r.size {
		n = r.size
	}
	out := make([]T, n)
	start := r.head - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i+2*len(r.buf))%len(r.buf)]
	}
	return out
}
