package app

import (
	"context"
	"sync"
)

// Broadcast fans the latest value out to any number of subscribers. Slow
// subscribers only ever see the newest value; publishers never block.
type Broadcast[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[chan T]struct{}
	closed bool
	done   chan struct{}
}

func NewBroadcast[T any](initial T) *Broadcast[T] {
	return &Broadcast[T]{
		value: initial,
		subs:  make(map[chan T]struct{}),
		done:  make(chan struct{}),
	}
}

// Value returns the last published value.
func (b *Broadcast[T]) Value() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Publish replaces the current value and notifies subscribers.
func (b *Broadcast[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.value = v
	for ch := range b.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel that first yields the current value and then
// every later one. It is closed when ctx ends or the broadcast is closed.
func (b *Broadcast[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	b.mu.Lock()
	ch <- b.value
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(ch)
		case <-b.done:
		}
	}()
	return ch
}

func (b *Broadcast[T]) unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close ends every subscription. Later publishes are ignored.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// offer replaces whatever is buffered in ch with v.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
