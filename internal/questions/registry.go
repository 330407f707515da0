// Package questions implements the pending-question registry: a question
// id is registered with a timeout, resolved at most once either by an
// explicit answer or by the timeout firing a default, and forgotten
// afterward.
//
// Grounded on providers.ClaudeProvider's pendingApprovals map of
// channels plus its select{ case <-ch: ...; case <-time.After(...): ... }
// race in the teacher repo, generalized into a reusable, per-family
// registry with an explicit Clear/Cleanup lifecycle.
package questions

import (
	"sync"
	"time"
)

// Resolver completes a pending question's answer exactly once. Calling it
// after the question has already been resolved (by a prior Resolver call
// or by the timeout) is a no-op.
type Resolver[T any] func(answer T)

// Registry tracks pending questions keyed by id.
type Registry[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	timeout time.Duration
}

type entry[T any] struct {
	ch       chan T
	timer    *time.Timer
	once     sync.Once
	resolved bool
}

// New creates a Registry that arms a timer of the given duration for every
// registered question.
func New[T any](timeout time.Duration) *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]*entry[T]),
		timeout: timeout,
	}
}

// Register records id as pending and arms its timeout. If the timeout
// elapses before the returned Resolver (or another resolution path) fires,
// onTimeout is called to produce a default answer, which resolves the
// returned channel. The channel receives exactly one value over its
// lifetime.
func (r *Registry[T]) Register(id string, onTimeout func() T) (<-chan T, Resolver[T]) {
	e := &entry[T]{ch: make(chan T, 1)}

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()

	e.timer = time.AfterFunc(r.timeout, func() {
		r.resolve(id, e, onTimeout())
	})

	resolve := func(answer T) {
		r.resolve(id, e, answer)
	}

	return e.ch, resolve
}

func (r *Registry[T]) resolve(id string, e *entry[T], answer T) {
	e.once.Do(func() {
		e.timer.Stop()
		e.ch <- answer
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()
	})
}

// Clear cancels id's timer if still armed and forgets it without
// resolving the channel. Used when a question is abandoned outside the
// normal answer/timeout paths (e.g. the owning session is torn down).
func (r *Registry[T]) Clear(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if ok && e.timer != nil {
		e.timer.Stop()
	}
}

// Cleanup cancels every armed timer and forgets every id, for supervisor
// shutdown.
func (r *Registry[T]) Cleanup() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry[T])
	r.mu.Unlock()

	for _, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

// Len reports the number of currently pending questions.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
