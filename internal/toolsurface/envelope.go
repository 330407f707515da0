// Package toolsurface adapts the six tool operations to a control
// plane reachable over WebSocket. It is deliberately thin: spec.md §1
// assumes the outer tool-protocol framing is given and hands the core
// only typed invocations, so everything here is marshaling and
// dispatch, never business logic.
//
// Grounded on internal/ws's Client: the same envelope shape
// ({v, type, ts, seq, payload}), the same reconnect-with-backoff dial
// loop, and the same durable outbound queue for at-least-once
// delivery — remapped from "agent pushes telemetry, control plane
// acks" to "control plane sends a tool request, supervisor pushes
// back the result."
package toolsurface

import "encoding/json"

// envelopeVersion is the wire version sent on every envelope.
const envelopeVersion = 1

// envelope is the wire shape of every message on the socket, reused
// unchanged from the teacher's client.
type envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// Request type discriminators, one per tool operation.
const (
	TypeStart     = "tool.start"
	TypeSay       = "tool.say"
	TypeStatus    = "tool.status"
	TypeRespond   = "tool.respond"
	TypeInterrupt = "tool.interrupt"
	TypeList      = "tool.list"
)

// The request types below are the inbound payload shapes, one per tool
// operation: each carries a correlation id the response echoes back,
// plus whichever operation-specific fields that Type calls for.
type startRequest struct {
	RequestID        string   `json:"request_id"`
	Prompt           string   `json:"prompt"`
	Agent            string   `json:"agent"`
	WorkingDirectory string   `json:"working_directory"`
	Model            string   `json:"model"`
	ApprovalPolicy   string   `json:"approval_policy"`
	AllowedTools     []string `json:"allowed_tools"`
	DisallowedTools  []string `json:"disallowed_tools"`
	MaxTurns         int      `json:"max_turns"`
	MaxBudget        float64  `json:"max_budget"`
	SystemPrompt     string   `json:"system_prompt"`
	Images           []string `json:"images"`
	SkipGitCheck     bool     `json:"skip_git_check"`
	BypassApprovals  bool     `json:"bypass_approvals"`
}

type sayRequest struct {
	RequestID              string   `json:"request_id"`
	SessionID              string   `json:"session_id"`
	Message                string   `json:"message"`
	Images                  []string `json:"images"`
	ApprovalPolicyOverride string   `json:"approval_policy_override"`
}

type statusRequest struct {
	RequestID        string `json:"request_id"`
	SessionID        string `json:"session_id"`
	RecentOutputLines int    `json:"recent_output_lines"`
}

type respondRequest struct {
	RequestID  string   `json:"request_id"`
	SessionID  string   `json:"session_id"`
	QuestionID string   `json:"question_id"`
	Answers    []string `json:"answers"`
}

type interruptRequest struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
}

type listRequest struct {
	RequestID string `json:"request_id"`
	FilterDir string `json:"filter_dir"`
	Limit     int    `json:"limit"`
}

// resultPayload is the outbound shape for every response envelope.
// The data fields populated match whichever request it answers
// (SessionID with Status, SessionID with StatusView, or Sessions). When
// the operation failed, Error is set and no Status, StatusView or
// Sessions is; SessionID still echoes the request's session id where it
// had one.
type resultPayload struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status,omitempty"`

	StatusView *statusViewDTO `json:"status_view,omitempty"`
	Sessions   []listEntryDTO `json:"sessions,omitempty"`
}

type subQuestionDTO struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

type pendingQuestionDTO struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	Questions []subQuestionDTO `json:"questions"`
}

type toolUseDTO struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type statusViewDTO struct {
	SessionID       string               `json:"session_id"`
	Status          string               `json:"status"`
	Result          string               `json:"result,omitempty"`
	RecentOutput    []string             `json:"recent_output,omitempty"`
	PendingQuestion *pendingQuestionDTO  `json:"pending_question,omitempty"`
	ToolUseEvents   []toolUseDTO         `json:"tool_use_events,omitempty"`
	CostUSD         float64              `json:"cost_usd"`
	InputTokens     int64                `json:"input_tokens"`
	OutputTokens    int64                `json:"output_tokens"`
	Turns           int                  `json:"turns"`
}

type listEntryDTO struct {
	SessionID string `json:"session_id"`
	Project   string `json:"project,omitempty"`
	Display   string `json:"display,omitempty"`
	Timestamp int64  `json:"timestamp"`
	IsActive  bool   `json:"is_active"`
	Status    string `json:"status,omitempty"`
}
