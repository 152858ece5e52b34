// Package store provides a small reactive state container. A Store holds one
// immutable state value plus a bound action set, and notifies subscribers
// synchronously after every update.
//
// Notifications are delivered one at a time in commit order. An update made
// while a delivery is running (from a listener, or from another goroutine)
// is queued and delivered by that running loop, so listeners never observe
// an older state after a newer one.
//
// Stores are plain values owned by whoever creates them; there are no
// package-level instances.
package store

import (
	"sync"
)

// Listener receives the new state after each update.
type Listener[S any] func(state S)

type subscription[S any] struct {
	id uint64
	fn Listener[S]
}

// Store is a generic state container. S is the data snapshot, A the bound
// action set built by the bind function passed to New.
type Store[S, A any] struct {
	mu          sync.RWMutex
	state       S
	pending     []S
	dispatching bool

	actions A

	subMu  sync.Mutex
	subs   []subscription[S]
	nextID uint64
}

// New creates a store holding initial. bind receives the store and returns
// the action set exposed through Actions; it may be nil for data-only stores.
func New[S, A any](initial S, bind func(*Store[S, A]) A) *Store[S, A] {
	s := &Store[S, A]{state: initial}
	if bind != nil {
		s.actions = bind(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Store[S, A]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Actions returns the bound action set.
func (s *Store[S, A]) Actions() A {
	return s.actions
}

// Set replaces the state and notifies subscribers once.
func (s *Store[S, A]) Set(next S) {
	s.mu.Lock()
	deliver := s.commit(next)
	s.mu.Unlock()
	if deliver {
		s.dispatch()
	}
}

// Update builds the next state from the previous one and notifies once.
// fn runs under the store lock and must not call back into the store.
func (s *Store[S, A]) Update(fn func(prev S) S) {
	s.mu.Lock()
	deliver := s.commit(fn(s.state))
	s.mu.Unlock()
	if deliver {
		s.dispatch()
	}
}

// UpdateIf is Update for actions that may turn out to be no-ops: when fn
// reports false the state is left alone and nobody is notified.
func (s *Store[S, A]) UpdateIf(fn func(prev S) (S, bool)) bool {
	s.mu.Lock()
	next, changed := fn(s.state)
	deliver := changed && s.commit(next)
	s.mu.Unlock()
	if deliver {
		s.dispatch()
	}
	return changed
}

// commit stores next and queues its notification. It reports whether the
// caller must run the delivery loop. Callers hold mu.
func (s *Store[S, A]) commit(next S) bool {
	s.state = next
	s.pending = append(s.pending, next)
	if s.dispatching {
		return false
	}
	s.dispatching = true
	return true
}

// dispatch delivers queued states until none are left.
func (s *Store[S, A]) dispatch() {
	drained := false
	defer func() {
		if !drained {
			// A listener panicked; let the next update start a fresh loop.
			s.mu.Lock()
			s.dispatching = false
			s.pending = nil
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.dispatching = false
			s.mu.Unlock()
			drained = true
			return
		}
		state := s.pending[0]
		var zero S
		s.pending[0] = zero
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.notify(state)
	}
}

// Subscribe registers l. The returned function removes exactly this
// subscription and is safe to call more than once.
func (s *Store[S, A]) Subscribe(l Listener[S]) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription[S]{id: id, fn: l})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Len returns the number of active subscriptions.
func (s *Store[S, A]) Len() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func (s *Store[S, A]) remove(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// notify calls listeners in subscription order. No lock is held while they
// run, so listeners may read State or trigger further actions.
func (s *Store[S, A]) notify(state S) {
	s.subMu.Lock()
	subs := make([]subscription[S], len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}
