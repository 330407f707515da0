package supervisor

import "errors"

// Sentinel error kinds surfaced by the six tool operations, matching
// spec.md §7's closed set verbatim. Returned as-is at the operation
// boundary; never retried inside the core.
var (
	ErrUnknownSession    = errors.New("unknown session")
	ErrNoPendingQuestion = errors.New("no pending question")
	ErrIDMismatch        = errors.New("question id mismatch")
	ErrNoActiveProcess   = errors.New("no active process")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrBusy              = errors.New("session busy")
	ErrSpawnFailed       = errors.New("spawn failed")
)
