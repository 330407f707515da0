package sessionstore

import (
	"errors"
	"sort"
	"sync"
)

// ErrCapacityExceeded is returned by Insert/CheckCapacity when admitting
// the session would push count_active past the configured max_sessions.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// TempIDSentinel labels an approval-bridge callback whose session id is
// not yet known to the agent's own auxiliary approval program (it
// hasn't been told one, or the CLI doesn't surface it), triggering the
// lookup-fallback heuristic in ResolveApprovalSession. The supervisor
// passes its freshly-minted temp id to the callback program wherever
// the spawn policy can thread it through; "unknown" covers the
// families that cannot.
const TempIDSentinel = "unknown"

// Store is a concurrent id → *Session map, grounded on the teacher's
// Agent.sessions map[string]*SessionState + Agent.sessionsMu
// sync.RWMutex (see main.go's read-lock-then-copy-then-operate pattern
// in sendClaudeUsage/sendGeminiStats, reused here for ForEach/CountActive).
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
}

// New constructs an empty Store enforcing maxSessions concurrently-live
// processes.
func New(maxSessions int) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
	}
}

// countActiveLocked counts sessions with a live process. Caller must
// hold at least a read lock.
func (s *Store) countActiveLocked() int {
	n := 0
	for _, sess := range s.sessions {
		if sess.Process != nil {
			n++
		}
	}
	return n
}

// CountActive reports the number of sessions with process != null.
func (s *Store) CountActive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countActiveLocked()
}

// Insert admits a freshly-created session, enforcing the concurrency
// cap. Capacity is checked only when the session already has a live
// process (start spawns before inserting); a session without one, such
// as say's placeholder for an unknown id, is always admitted.
func (s *Store) Insert(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.Process != nil && s.countActiveLocked() >= s.maxSessions {
		return ErrCapacityExceeded
	}
	s.sessions[sess.ID] = sess
	return nil
}

// CheckCapacity reports ErrCapacityExceeded if admitting one more live
// process would violate max_sessions, without mutating the store. Used
// by say's resume path before spawning a fresh process for an existing
// session.
func (s *Store) CheckCapacity() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.countActiveLocked() >= s.maxSessions {
		return ErrCapacityExceeded
	}
	return nil
}

// Get looks up a session by exact id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Rekey atomically moves a session from oldID to newID. It does not touch
// the session's own ID or temp-id marker; the caller updates those under
// the session's lock. After this call the session is reachable only under
// newID (spec.md §3 invariant 6).
func (s *Store) Rekey(oldID, newID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[oldID]
	if !ok || oldID == newID {
		return false
	}
	delete(s.sessions, oldID)
	s.sessions[newID] = sess
	return true
}

// Remove forgets a session entirely. The supervisor never calls it
// (Shutdown included), so sessions are kept for the store's lifetime
// per spec.md §3's lifecycle note.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ForEach calls fn for every session, under a read lock. fn must not
// call back into the Store.
func (s *Store) ForEach(fn func(*Session)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		fn(sess)
	}
}

// All returns a snapshot slice of every session, sorted by CreatedAt
// descending (newest first) — the order list() wants before filtering.
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ResolveApprovalSession implements the lookup-fallback heuristic from
// spec.md §4.7, checked in order: exact match; else, if label is the
// "not yet initialized" sentinel, the most recently inserted session
// still carrying a temp id; else, the most recently created session
// whose status is ACTIVE or AWAITING_INPUT. The exact-match check runs
// unconditionally, before the sentinel branches, since a label equal
// to the sentinel is still eligible for an exact match — no real
// session id happens to collide with it in practice, but the lookup
// order should not depend on that coincidence. This covers the race
// where the agent's approval path fires before the Init event.
func (s *Store) ResolveApprovalSession(label string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[label]; ok {
		return sess, true
	}

	var candidates []*Session
	for _, sess := range s.sessions {
		if label == TempIDSentinel {
			if sess.GetIsTempID() {
				candidates = append(candidates, sess)
			}
			continue
		}
		status := sess.GetStatus()
		if status == StatusActive || status == StatusAwaitingInput {
			candidates = append(candidates, sess)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates[0], true
}
