package supervisor

import (
	"github.com/agent-command/agentd/internal/sessionstore"
	"github.com/agent-command/agentd/internal/usage"
)

// StartParams is start()'s parameter record (spec.md §6).
type StartParams struct {
	Prompt           string
	Agent            string // selects the SpawnPolicy; defaults to the manager's default
	WorkingDirectory string
	Model            string
	ApprovalPolicy   string
	AllowedTools     []string
	DisallowedTools  []string
	MaxTurns         int
	MaxBudget        float64
	SystemPrompt     string
	Images           []string
	SkipGitCheck     bool
	BypassApprovals  bool
}

// SayParams is say()'s parameter record.
type SayParams struct {
	SessionID             string
	Message               string
	Images                []string
	ApprovalPolicyOverride string
}

// SubQuestionView mirrors approval.SubQuestion for a single rendered
// question line in a StatusView.
type SubQuestionView struct {
	Question string
	Options  []string
}

// PendingQuestionView is the operator-facing view of a pending
// question; never includes the resolver or the raw tool input
// (spec.md §4.8.3).
type PendingQuestionView struct {
	ID        string
	Kind      string
	Questions []SubQuestionView
}

// ToolUseView is one entry of status()'s tool_use_events list.
type ToolUseView struct {
	Name   string
	Status string
}

// StatusView is status()'s response record.
type StatusView struct {
	SessionID       string
	Status          string
	Result          string
	RecentOutput    []string
	PendingQuestion *PendingQuestionView
	ToolUseEvents   []ToolUseView
	Metrics         sessionstore.Metrics
	AccountUsage    *usage.AccountUsage
}

// ListEntry is one row of list()'s response.
type ListEntry struct {
	SessionID string
	Project   string
	Display   string
	Timestamp int64 // unix seconds; 0 if unknown
	IsActive  bool
	Status    string
}
