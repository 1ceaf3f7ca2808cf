package notify

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxPending is the max number of events a subscriber can lag behind.
const DefaultMaxPending = 1024

// EventQueue fans out events to subscribers. Each subscriber gets every
// event published after it subscribed, in publish order. A subscriber that
// lags behind by more than maxPending events is dropped: its channel is
// closed and the events not yet consumed are lost.
type EventQueue[T any] struct {
	lock       sync.Mutex
	subs       map[string]*subscription[T]
	maxPending int
}

// NewEventQueue returns a queue whose subscribers can lag behind by up to
// maxPending events, DefaultMaxPending if not positive.
func NewEventQueue[T any](maxPending int) *EventQueue[T] {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &EventQueue[T]{
		subs:       make(map[string]*subscription[T]),
		maxPending: maxPending,
	}
}

// Publish enqueues the event for every subscriber. It never blocks.
func (q *EventQueue[T]) Publish(event T) {
	q.lock.Lock()
	defer q.lock.Unlock()

	for id, s := range q.subs {
		if s.push(event, q.maxPending) {
			continue
		}
		s.close()
		delete(q.subs, id)
		log.WithField("subscription", id).Warnf(
			"subscriber lagging behind by %d events, dropped", q.maxPending,
		)
	}
}

// Subscribe returns the id of the subscription and the channel events are
// delivered on.
func (q *EventQueue[T]) Subscribe() (string, <-chan T) {
	q.lock.Lock()
	defer q.lock.Unlock()

	id := uuid.New().String()
	s := newSubscription[T]()
	q.subs[id] = s
	go s.pump()
	return id, s.out
}

// Unsubscribe stops delivery and closes the subscription channel. Events
// not yet consumed are dropped.
func (q *EventQueue[T]) Unsubscribe(id string) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if s, ok := q.subs[id]; ok {
		s.close()
		delete(q.subs, id)
	}
}

// Close drops every subscription.
func (q *EventQueue[T]) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()

	for id, s := range q.subs {
		s.close()
		delete(q.subs, id)
	}
}

type subscription[T any] struct {
	lock   sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
	done   chan struct{}
	out    chan T
}

func newSubscription[T any]() *subscription[T] {
	s := &subscription[T]{
		done: make(chan struct{}),
		out:  make(chan T),
	}
	s.cond = sync.NewCond(&s.lock)
	return s
}

// push returns false if the event would exceed limit pending items.
func (s *subscription[T]) push(event T, limit int) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return true
	}
	if len(s.items) >= limit {
		return false
	}
	s.items = append(s.items, event)
	s.cond.Signal()
	return true
}

func (s *subscription[T]) close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Signal()
}

func (s *subscription[T]) pump() {
	defer close(s.out)

	var zero T
	for {
		s.lock.Lock()
		for len(s.items) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.lock.Unlock()
			return
		}
		event := s.items[0]
		s.items[0] = zero
		s.items = s.items[1:]
		s.lock.Unlock()

		select {
		case s.out <- event:
		case <-s.done:
			return
		}
	}
}
