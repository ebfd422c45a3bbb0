package util

import "sync"

// Broadcaster fans values out to subscribers without blocking the sender.
// A slow subscriber drops values rather than stalling publishers.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	buffer int
	closed bool
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer values.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster[T]{subs: make(map[chan T]struct{}), buffer: buffer}
}

// Subscribe returns a receive channel and a cancel func that closes it.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers v to every subscriber with room in its buffer.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Close closes all subscriber channels; later Subscribe calls get a closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}
