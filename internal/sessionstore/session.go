// Package sessionstore owns the Session record and the concurrent
// id → Session map the Session Manager (C8) mutates. Grounded on the
// teacher's Agent.sessions map[string]*SessionState +
// Agent.sessionsMu sync.RWMutex in cmd/agentd/main.go.
package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/agent-command/agentd/internal/approval"
	"github.com/agent-command/agentd/internal/events"
	"github.com/agent-command/agentd/internal/history"
	"github.com/agent-command/agentd/internal/questions"
	"github.com/agent-command/agentd/internal/spawnpolicy"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive         Status = "active"
	StatusAwaitingInput  Status = "awaiting_input"
	StatusDone           Status = "done"
	StatusError          Status = "error"
	StatusInterrupted    Status = "interrupted"
)

// ToolUseStatus tracks one observed tool invocation's lifecycle.
type ToolUseStatus string

const (
	ToolUseRunning   ToolUseStatus = "running"
	ToolUseCompleted ToolUseStatus = "completed"
	ToolUseDenied    ToolUseStatus = "denied"
)

// ToolUseRecord is one entry of a session's tool-use timeline.
type ToolUseRecord struct {
	ToolUseID string
	Name      string
	Status    ToolUseStatus
}

// Metrics is whatever usage accounting the agent's events expose: the
// tool-use timeline from stream events and cost/token/turn figures from
// Result events. Account-level usage (internal/usage) is kept per agent
// family by the supervisor, not here.
type Metrics struct {
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
	Turns        int
	ToolUses     []ToolUseRecord
}

// PendingQuestion is the single outstanding approval question for a
// session, if any.
type PendingQuestion struct {
	ID            string
	Kind          approval.Kind
	Prompt        string
	Options       []string
	SubQuestions  []approval.SubQuestion
	OriginalInput map[string]any

	// Resolver completes the question exactly once; supplied by C4's
	// Registry.Register at handle_approval time. Never exposed outside
	// the supervisor package's handlers.
	Resolver questions.Resolver[approval.Response]
}

// Process is the live handle to a spawned agent CLI, as returned by
// internal/spawnproc.Spawn. Declared as an interface here so
// sessionstore does not import spawnproc (which in turn would create
// an import cycle once spawnproc needs session lookups); supervisor
// satisfies it with *spawnproc.Process.
type Process interface {
	WriteStdin(data []byte) error
	SignalInterrupt() error
	InterruptAsync(grace time.Duration) error
	Interrupt(ctx context.Context, grace time.Duration) error
	SignalTerminate() error
	Kill() error
	Done() <-chan struct{}
	PID() int
}

// Session is the central entity, matching spec.md §3 verbatim.
type Session struct {
	mu sync.Mutex

	ID                string
	Status            Status
	Process           Process
	CreatedAt         time.Time
	WorkingDirectory  string
	SpawnParams       spawnpolicy.SpawnParams
	PolicyName        string
	History           *history.Ring
	PendingQuestion   *PendingQuestion
	Result            string
	Err               string
	Metrics           Metrics

	// IsTempID reports whether ID is still the provisional id assigned
	// at start(), before the agent's Init event rekeys the session.
	IsTempID bool
}

// NewSession constructs a fresh ACTIVE session under the given temp id.
func NewSession(tempID string, params spawnpolicy.SpawnParams, policyName string, historyCap int) *Session {
	return &Session{
		ID:               tempID,
		Status:           StatusActive,
		CreatedAt:        time.Now().UTC(),
		WorkingDirectory: params.WorkingDirectory,
		SpawnParams:      params,
		PolicyName:       policyName,
		History:          history.New(historyCap),
		IsTempID:         true,
	}
}

// GetStatus reads Status under the session lock.
func (s *Session) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// GetID reads ID under the session lock.
func (s *Session) GetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ID
}

// GetIsTempID reads IsTempID under the session lock.
func (s *Session) GetIsTempID() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.IsTempID
}

// Lock/Unlock expose the per-session serialization guarantee from
// spec.md §5 to the Session Manager, which performs every mutation
// (status changes, history appends, pending-question writes, id
// rekeying) while holding it.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// AppendEvent records e in the session's ring history. Caller must hold
// the session lock.
func (s *Session) AppendEvent(e events.Event) {
	s.History.Append(e)
}

// RecentText extracts up to n text-delta strings from history, newest
// appended last (insertion order), matching status's recent_output.
func (s *Session) RecentText(n int) []string {
	return history.Extract(s.History, func(e events.Event) (string, bool) {
		if e.Kind == events.KindStream && e.Stream != nil && e.Stream.StreamKind == events.StreamTextDelta {
			return e.Stream.Text, true
		}
		return "", false
	}, n)
}
