package eventbus

import (
	"sync"
	"sync/atomic"
)

const defaultBuffer = 16

type options struct {
	buffer int
}

// Option configures a bus.
type Option func(*options)

// WithBuffer sets the channel capacity of each subscriber.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// TypedBus is a type-safe publish/subscribe bus for events of type T.
// Slow subscribers miss events instead of blocking publishers; misses are
// counted by Dropped.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

// NewTyped creates a new TypedBus.
func NewTyped[T any](opts ...Option) *TypedBus[T] {
	o := options{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return &TypedBus[T]{buffer: o.buffer}
}

// Publish sends the event to all subscribers. Delivery is non-blocking.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber and returns its channel. Subscribing to
// a closed bus returns a closed channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch != sub {
			continue
		}
		b.subs = append(b.subs[:i], b.subs[i+1:]...)
		if !b.closed {
			close(ch)
		}
		return
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
