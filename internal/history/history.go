// Package history implements a bounded FIFO of agent events per session,
// serving status's recent_output and tool-use views without retaining
// unbounded transcripts.
package history

import "github.com/agent-command/agentd/internal/events"

// Ring is a fixed-capacity FIFO of events. The zero value is not usable;
// construct with New. Not safe for concurrent use — callers serialize
// access the way the session manager serializes all per-session mutation.
type Ring struct {
	cap   int
	buf   []events.Event
	start int
	size  int
}

// New creates a Ring with the given capacity. Capacity must be positive.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		cap: capacity,
		buf: make([]events.Event, capacity),
	}
}

// Append adds e to the ring, evicting the oldest entry if at capacity.
func (r *Ring) Append(e events.Event) {
	idx := (r.start + r.size) % r.cap
	r.buf[idx] = e
	if r.size < r.cap {
		r.size++
	} else {
		r.start = (r.start + 1) % r.cap
	}
}

// Length returns the current number of entries, never exceeding capacity.
func (r *Ring) Length() int {
	return r.size
}

// Recent returns the last n entries in insertion order. n is clamped to
// the current size.
func (r *Ring) Recent(n int) []events.Event {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]events.Event, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.size - n + i) % r.cap
		out[i] = r.buf[idx]
	}
	return out
}

// Clear empties the ring without changing its capacity.
func (r *Ring) Clear() {
	r.start = 0
	r.size = 0
}

// Extract walks the last n entries for which mapFn returns (value, true),
// in insertion order, and returns up to n mapped values. It scans from the
// most recent entry backwards until it has collected n matches or has
// exhausted the ring.
func Extract[T any](r *Ring, mapFn func(events.Event) (T, bool), n int) []T {
	if n <= 0 || r.size == 0 {
		return nil
	}
	results := make([]T, 0, n)
	for i := 0; i < r.size && len(results) < n; i++ {
		idx := (r.start + r.size - 1 - i) % r.cap
		if v, ok := mapFn(r.buf[idx]); ok {
			results = append(results, v)
		}
	}
	// results were collected newest-first; reverse to insertion order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results
}
