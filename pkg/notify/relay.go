package notify

import (
	"sync"

	"github.com/google/uuid"
)

// StateRelay delivers the latest value to every subscriber. Slow
// subscribers never block the publisher, they just miss intermediate
// values.
type StateRelay[T any] struct {
	lock    sync.RWMutex
	current T
	subs    map[string]chan T
}

// NewStateRelay returns a relay holding the given initial value.
func NewStateRelay[T any](initial T) *StateRelay[T] {
	return &StateRelay[T]{
		current: initial,
		subs:    make(map[string]chan T),
	}
}

// Value returns the last published value.
func (r *StateRelay[T]) Value() T {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.current
}

// Publish replaces the current value and notifies subscribers.
func (r *StateRelay[T]) Publish(v T) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.current = v
	for _, ch := range r.subs {
		overwrite(ch, v)
	}
}

// Subscribe returns a channel that immediately yields the current value and
// then every new one. The id is needed to unsubscribe.
func (r *StateRelay[T]) Subscribe() (string, <-chan T) {
	r.lock.Lock()
	defer r.lock.Unlock()

	id := uuid.New().String()
	ch := make(chan T, 1)
	ch <- r.current
	r.subs[id] = ch
	return id, ch
}

// Unsubscribe closes the channel of the given subscription.
func (r *StateRelay[T]) Unsubscribe(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

// Close drops every subscription.
func (r *StateRelay[T]) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()

	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
}

// overwrite must be called with the relay lock held, it is the only sender.
func overwrite[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
