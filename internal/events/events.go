// Package events is a small typed publish/subscribe primitive used for the
// notifications clients emit to their owners.
package events

import "sync"

// Topic delivers values of T to its subscribers synchronously, in the order they
// subscribed. The zero value is ready to use. A Topic must not be copied after first use.
type Topic[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is a no-op.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription[T]{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every current subscriber with value and returns how many were called.
// Subscribers run on the caller's goroutine without the topic lock held, so they
// may subscribe, unsubscribe or publish themselves.
func (t *Topic[T]) Publish(value T) int {
	t.mu.Lock()
	subs := make([]subscription[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, s := range subs {
		s.fn(value)
	}
	return len(subs)
}
