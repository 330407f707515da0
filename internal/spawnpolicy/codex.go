package spawnpolicy

import "strconv"

// CodexPolicy renders argv for a one-process-per-turn "codex exec" CLI
// that exits after each turn and surfaces approval prompts on stderr
// rather than over a callback endpoint. Grounded on the teacher's
// CodexConfig.ExecPath / ApprovalAllowKeys / ApprovalDenyKeys, adapted
// from tmux-pane keystroke delivery to direct stdin writes.
type CodexPolicy struct {
	execPath      string
	sessionIndexPath string
}

// NewCodexPolicy constructs a CodexPolicy. sessionIndexPath is the
// append-only JSONL file the codex CLI maintains of its own sessions.
func NewCodexPolicy(execPath, sessionIndexPath string) *CodexPolicy {
	return &CodexPolicy{execPath: execPath, sessionIndexPath: sessionIndexPath}
}

func (p *CodexPolicy) Name() string     { return "codex" }
func (p *CodexPolicy) ExecPath() string { return p.execPath }

func (p *CodexPolicy) RenderArgv(params SpawnParams) []string {
	argv := []string{"exec", "--json"}

	if params.WorkingDirectory != "" {
		argv = append(argv, "--cd", params.WorkingDirectory)
	}
	if params.Model != "" {
		argv = append(argv, "--model", params.Model)
	}
	if params.MaxTurns > 0 {
		argv = append(argv, "--max-turns", strconv.Itoa(params.MaxTurns))
	}
	if params.SkipGitCheck {
		argv = append(argv, "--skip-git-repo-check")
	}
	if params.BypassApprovals {
		argv = append(argv, "--dangerously-bypass-approvals-and-sandbox")
	}

	prompt := params.Prompt
	if params.ResumeSessionID != "" {
		argv = append(argv, "resume", params.ResumeSessionID)
		prompt = params.FollowUpMessage
	}
	argv = append(argv, prompt)

	return argv
}

func (p *CodexPolicy) ApprovalMode() ApprovalMode { return ApprovalInlineIO }
func (p *CodexPolicy) SupportsLiveStdin() bool    { return false }

func (p *CodexPolicy) SessionIndexLocation() IndexLocation {
	return IndexLocation{Kind: IndexJSONLFile, Path: p.sessionIndexPath}
}
