package spawnpolicy

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ClaudePolicy renders argv for a long-lived "claude" CLI process that
// streams line-delimited JSON events on stdout and supports both a
// live-stdin follow-up channel and a callback-bridge approval side
// channel. Grounded on providers/claude.go's hooks HTTP server and the
// teacher's config.ClaudeConfig.HooksHTTPListen-driven wiring.
type ClaudePolicy struct {
	execPath        string
	sessionIndexDir string
}

// NewClaudePolicy constructs a ClaudePolicy. sessionIndexDir is the root
// of the agent CLI's own on-disk session store (date-partitioned), owned
// and written by the CLI itself — the supervisor only reads it for list().
func NewClaudePolicy(execPath, sessionIndexDir string) *ClaudePolicy {
	return &ClaudePolicy{execPath: execPath, sessionIndexDir: sessionIndexDir}
}

func (p *ClaudePolicy) Name() string     { return "claude" }
func (p *ClaudePolicy) ExecPath() string { return p.execPath }

func (p *ClaudePolicy) RenderArgv(params SpawnParams) []string {
	argv := []string{"--output-format", "stream-json", "--verbose"}

	if params.ResumeSessionID != "" {
		argv = append(argv, "--resume", params.ResumeSessionID)
	}

	if params.Model != "" {
		argv = append(argv, "--model", params.Model)
	}
	if params.SystemPrompt != "" {
		argv = append(argv, "--append-system-prompt", params.SystemPrompt)
	}
	if len(params.AllowedTools) > 0 {
		argv = append(argv, "--allowedTools", strings.Join(params.AllowedTools, ","))
	}
	if len(params.DisallowedTools) > 0 {
		argv = append(argv, "--disallowedTools", strings.Join(params.DisallowedTools, ","))
	}
	if params.MaxTurns > 0 {
		argv = append(argv, "--max-turns", strconv.Itoa(params.MaxTurns))
	}
	if params.ApprovalPolicy != "" {
		argv = append(argv, "--permission-mode", params.ApprovalPolicy)
	}
	if params.BypassApprovals {
		argv = append(argv, "--dangerously-skip-permissions")
	} else if params.CallbackEndpoint != "" {
		argv = append(argv, "--permission-prompt-tool-endpoint", params.CallbackEndpoint)
	}
	for _, img := range params.Images {
		argv = append(argv, "--image", img)
	}

	prompt := params.Prompt
	if params.ResumeSessionID != "" {
		prompt = params.FollowUpMessage
	}
	argv = append(argv, "-p", prompt)

	return argv
}

func (p *ClaudePolicy) ApprovalMode() ApprovalMode { return ApprovalCallbackBridge }
func (p *ClaudePolicy) SupportsLiveStdin() bool    { return true }

func (p *ClaudePolicy) SessionIndexLocation() IndexLocation {
	return IndexLocation{Kind: IndexDatePartitioned, Path: p.sessionIndexDir}
}

// StdinMessage renders a follow-up message for a live claude process's
// stdin, per spec.md §4.6 "one line of JSON {role, content, session_id}".
func StdinMessage(sessionID, content string) ([]byte, error) {
	line, err := json.Marshal(struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		SessionID string `json:"session_id"`
	}{Role: "user", Content: content, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}
