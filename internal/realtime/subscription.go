package realtime

import (
	"sync"
	"sync/atomic"
)

type Handler func(Event)

// Subscription is the handle returned by Subscribe. Unsubscribe is idempotent;
// once it returns, the handler is not invoked for events published afterwards.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id     int
	h      Handler
	active atomic.Bool
	owner  *subscriptions
}

func (s *subscription) Unsubscribe() {
	if s.active.Swap(false) {
		s.owner.remove(s.id)
	}
}

type subscriptions struct {
	mu     sync.Mutex
	nextId int
	subs   map[int]*subscription
	closed bool
}

func newSubscriptions() *subscriptions {
	return &subscriptions{subs: make(map[int]*subscription)}
}

func (s *subscriptions) add(h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{id: s.nextId, h: h, owner: s}
	s.nextId++
	if s.closed {
		return sub
	}
	sub.active.Store(true)
	s.subs[sub.id] = sub
	return sub
}

func (s *subscriptions) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *subscriptions) publish(ev Event) {
	s.mu.Lock()
	targets := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		if sub.active.Load() {
			sub.h(ev)
		}
	}
}

// closeAll releases every subscription; later adds return inactive handles.
func (s *subscriptions) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.subs {
		sub.active.Store(false)
		delete(s.subs, id)
	}
	s.closed = true
}

func (s *subscriptions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
