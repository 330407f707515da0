package spawnpolicy

import (
	"strings"
	"testing"
)

func containsFlag(argv []string, flag string) bool {
	for _, a := range argv {
		if a == flag {
			return true
		}
	}
	return false
}

func TestClaudeRenderArgvOmitsUnsetOptionals(t *testing.T) {
	p := NewClaudePolicy("claude", "/tmp/idx")
	argv := p.RenderArgv(SpawnParams{Prompt: "hello"})

	if containsFlag(argv, "--model") {
		t.Fatalf("model flag present when unset: %v", argv)
	}
	if containsFlag(argv, "--resume") {
		t.Fatalf("resume flag present when unset: %v", argv)
	}
	if !containsFlag(argv, "-p") {
		t.Fatalf("missing mandatory -p flag: %v", argv)
	}
	if argv[len(argv)-1] != "hello" {
		t.Fatalf("prompt not rendered: %v", argv)
	}
}

func TestClaudeRenderArgvIncludesSetOptionals(t *testing.T) {
	p := NewClaudePolicy("claude", "/tmp/idx")
	argv := p.RenderArgv(SpawnParams{Prompt: "hello", Model: "opus", MaxTurns: 5})

	if !containsFlag(argv, "--model") {
		t.Fatalf("missing --model: %v", argv)
	}
	if !containsFlag(argv, "--max-turns") {
		t.Fatalf("missing --max-turns: %v", argv)
	}
}

func TestClaudeRenderArgvResumeUsesFollowUp(t *testing.T) {
	p := NewClaudePolicy("claude", "/tmp/idx")
	argv := p.RenderArgv(SpawnParams{
		Prompt:          "original prompt",
		ResumeSessionID: "real-1",
		FollowUpMessage: "follow up",
	})

	if !containsFlag(argv, "--resume") {
		t.Fatalf("missing --resume: %v", argv)
	}
	if strings.Contains(strings.Join(argv, " "), "original prompt") {
		t.Fatalf("original prompt leaked into resume argv: %v", argv)
	}
	if argv[len(argv)-1] != "follow up" {
		t.Fatalf("follow-up message not used as prompt: %v", argv)
	}
}

func TestClaudeApprovalModeAndStdin(t *testing.T) {
	p := NewClaudePolicy("claude", "/tmp/idx")
	if p.ApprovalMode() != ApprovalCallbackBridge {
		t.Fatalf("approval mode = %s", p.ApprovalMode())
	}
	if !p.SupportsLiveStdin() {
		t.Fatal("claude should support live stdin")
	}
}

func TestCodexOneProcessPerTurn(t *testing.T) {
	p := NewCodexPolicy("codex", "/tmp/idx.jsonl")
	if p.SupportsLiveStdin() {
		t.Fatal("codex should not support live stdin")
	}
	if p.ApprovalMode() != ApprovalInlineIO {
		t.Fatalf("approval mode = %s", p.ApprovalMode())
	}
}

func TestCodexRenderArgvResume(t *testing.T) {
	p := NewCodexPolicy("codex", "/tmp/idx.jsonl")
	argv := p.RenderArgv(SpawnParams{ResumeSessionID: "abc", FollowUpMessage: "more work"})
	if !containsFlag(argv, "resume") {
		t.Fatalf("missing resume subcommand: %v", argv)
	}
	if argv[len(argv)-1] != "more work" {
		t.Fatalf("follow-up not used: %v", argv)
	}
}

func TestStdinMessageShape(t *testing.T) {
	line, err := StdinMessage("sess-1", "hi there")
	if err != nil {
		t.Fatalf("StdinMessage: %v", err)
	}
	s := string(line)
	if !strings.Contains(s, `"role":"user"`) || !strings.Contains(s, `"session_id":"sess-1"`) {
		t.Fatalf("got %q", s)
	}
	if s[len(s)-1] != '\n' {
		t.Fatalf("stdin message should end in newline: %q", s)
	}
}
