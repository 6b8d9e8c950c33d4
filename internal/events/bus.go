// Package events provides a small typed publish/subscribe bus used to fan
// progress and log notifications out to whatever surfaces are attached.
package events

import (
	"fmt"
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus delivers values of type T to every subscriber. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Bus[T any] struct {
	mu      sync.RWMutex
	subs    map[int]chan T
	nextID  int
	closed  bool
	dropped uint64
	onPanic func(error)
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]chan T)}
}

// OnListenerPanic sets the callback invoked when a Listen handler panics.
func (b *Bus[T]) OnListenerPanic(fn func(error)) {
	b.mu.Lock()
	b.onPanic = fn
	b.mu.Unlock()
}

// Subscribe registers a new subscriber and returns its channel along with a
// cancel function that unregisters and closes it.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

// Listen runs fn for each event on its own goroutine until cancel is called
// or the bus is closed. A panicking handler is recovered and reported; the
// listener keeps running.
func (b *Bus[T]) Listen(fn func(T)) (cancel func(), done <-chan struct{}) {
	ch, unsubscribe := b.Subscribe(DefaultBuffer)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for ev := range ch {
			b.dispatch(fn, ev)
		}
	}()
	return unsubscribe, finished
}

func (b *Bus[T]) dispatch(fn func(T), ev T) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.RLock()
			report := b.onPanic
			b.mu.RUnlock()
			if report != nil {
				report(fmt.Errorf("event listener panic: %v", r))
			}
		}
	}()
	fn(ev)
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus[T]) Publish(ev T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus[T]) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close unregisters every subscriber and closes their channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
