// Package spawnpolicy isolates everything agent-family-specific behind a
// small interface, per spec.md §9's "Pattern: per-family policy": argv
// rendering, the approval side-channel mode, live-stdin support, and the
// on-disk session index layout. Adding a third agent family means adding
// a Policy implementation here; C4/C7/C8 never change.
package spawnpolicy

// ApprovalMode selects which of the two approval side-channel mechanisms
// from spec.md §4.6 a Policy uses.
type ApprovalMode string

const (
	// ApprovalCallbackBridge: the agent is launched with flags pointing
	// it at an auxiliary approval program that POSTs to a loopback
	// HTTP listener and blocks on the response.
	ApprovalCallbackBridge ApprovalMode = "callback_bridge"
	// ApprovalInlineIO: the agent writes an approval prompt to stderr
	// and blocks on stdin; the supervisor pattern-matches the prompt
	// and replies with a short token.
	ApprovalInlineIO ApprovalMode = "inline_io"
)

// IndexKind discriminates the two on-disk session index layouts spec.md
// §6 describes.
type IndexKind string

const (
	IndexJSONLFile     IndexKind = "jsonl_file"
	IndexDatePartitioned IndexKind = "date_partitioned_dir"
)

// IndexLocation locates an agent family's on-disk session index.
type IndexLocation struct {
	Kind IndexKind
	Path string // file path for IndexJSONLFile, root dir for IndexDatePartitioned
}

// SpawnParams is the full bundle of agent parameters, stored verbatim on
// the Session for faithful resume (spec.md §3).
type SpawnParams struct {
	Prompt            string
	WorkingDirectory  string
	Model             string
	ApprovalPolicy    string // permission_mode: e.g. "default", "plan", "bypassPermissions"
	AllowedTools      []string
	DisallowedTools   []string
	MaxTurns          int
	MaxBudget         float64
	SystemPrompt      string
	Images            []string
	SkipGitCheck      bool
	BypassApprovals   bool

	// ResumeSessionID is set internally by the Session Manager when
	// respawning; never supplied directly by the operator's start().
	ResumeSessionID string
	// FollowUpMessage is the prompt used instead of Prompt when
	// ResumeSessionID is set.
	FollowUpMessage string

	// CallbackEndpoint is filled in by the Session Manager before spawn
	// when Policy's ApprovalMode is ApprovalCallbackBridge.
	CallbackEndpoint string
}

// Policy is the per-agent-family strategy bundle.
type Policy interface {
	// Name identifies the family, e.g. "claude", "codex".
	Name() string

	// ExecPath is the CLI executable to invoke.
	ExecPath() string

	// RenderArgv renders params into an argv following the
	// omit-when-unset rule: optional flags appear only when the
	// corresponding param is set.
	RenderArgv(params SpawnParams) []string

	// ApprovalMode selects the side-channel mechanism for this family.
	ApprovalMode() ApprovalMode

	// SupportsLiveStdin reports whether a follow-up message can be
	// written to the running process's stdin, or whether the family is
	// one-process-per-turn and must always resume via a fresh spawn.
	SupportsLiveStdin() bool

	// SessionIndexLocation locates the on-disk index list() reads.
	SessionIndexLocation() IndexLocation
}
