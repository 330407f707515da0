package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/agent-command/agentd/internal/approval"
	"github.com/agent-command/agentd/internal/config"
	"github.com/agent-command/agentd/internal/sessionstore"
	"github.com/agent-command/agentd/internal/spawnpolicy"
)

// fakePolicy stands in for a real agent CLI family: RenderArgv turns a
// shell script (rather than real agent flags) into argv for /bin/sh, so
// tests exercise the full Start/Say/Respond/Interrupt wiring without a
// real claude or codex binary on PATH.
type fakePolicy struct {
	name      string
	mode      spawnpolicy.ApprovalMode
	liveStdin bool
	script    func(params spawnpolicy.SpawnParams) string
}

func (p *fakePolicy) Name() string     { return p.name }
func (p *fakePolicy) ExecPath() string { return "/bin/sh" }
func (p *fakePolicy) RenderArgv(params spawnpolicy.SpawnParams) []string {
	return []string{"-c", p.script(params)}
}
func (p *fakePolicy) ApprovalMode() spawnpolicy.ApprovalMode { return p.mode }
func (p *fakePolicy) SupportsLiveStdin() bool                { return p.liveStdin }
func (p *fakePolicy) SessionIndexLocation() spawnpolicy.IndexLocation {
	return spawnpolicy.IndexLocation{}
}

func testEnv() config.EnvConfig {
	return config.EnvConfig{
		CLIPath:           "/bin/sh",
		ApprovalTimeoutMs: 60000,
		MaxSessions:       5,
		EventBufferSize:   100,
	}
}

func newTestManager(env config.EnvConfig, policies map[string]spawnpolicy.Policy, defaultPolicy string) *Manager {
	return New(env, policies, defaultPolicy, nil)
}

func waitForStatus(t *testing.T, m *Manager, id string, want sessionstore.Status, timeout time.Duration) StatusView {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last StatusView
	for time.Now().Before(deadline) {
		view, err := m.Status(id, 50)
		if err != nil {
			t.Fatalf("Status(%q): %v", id, err)
		}
		last = view
		if view.Status == string(want) {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %q never reached status %q, last seen %q", id, want, last.Status)
	return last
}

// Scenario: start() spawns a process, its Init event rekeys the temp id
// to the agent's real session id, and a normal turn runs to completion.
func TestStartRekeysAndCompletes(t *testing.T) {
	policy := &fakePolicy{
		name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(params spawnpolicy.SpawnParams) string {
			return `echo '{"type":"system","subtype":"init","session_id":"real-start-1"}'
echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}'
echo '{"type":"user","message":{"role":"user","content":[{"type":"tool_result","id":"t1"}]}}'
echo '{"type":"result","subtype":"success","result":"listed files"}'`
		},
	}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	id, _, err := m.Start(context.Background(), StartParams{Prompt: "list files", Agent: "claude"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id != "real-start-1" {
		t.Fatalf("expected rekey to real-start-1, got %q", id)
	}

	view := waitForStatus(t, m, id, sessionstore.StatusDone, 2*time.Second)
	if view.Result != "listed files" {
		t.Fatalf("result = %q", view.Result)
	}
	if len(view.ToolUseEvents) != 1 || view.ToolUseEvents[0].Status != string(sessionstore.ToolUseCompleted) {
		t.Fatalf("tool use events = %+v", view.ToolUseEvents)
	}
}

// Scenario: say() against a live, long-running process delivers the
// follow-up over stdin rather than respawning.
func TestSayDeliversLiveStdinWhenSupported(t *testing.T) {
	policy := &fakePolicy{
		name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(params spawnpolicy.SpawnParams) string {
			return `echo '{"type":"system","subtype":"init","session_id":"real-say-1"}'
while read -r line; do
  echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"ack"}]}}'
done`
		},
	}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	id, _, err := m.Start(context.Background(), StartParams{Prompt: "hello", Agent: "claude"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, m, id, sessionstore.StatusActive, time.Second)

	sayID, status, err := m.Say(context.Background(), SayParams{SessionID: id, Message: "follow up"})
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	if sayID != id || status != sessionstore.StatusActive {
		t.Fatalf("Say returned (%q, %q)", sayID, status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		view, err := m.Status(id, 10)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		for _, line := range view.RecentOutput {
			if line == "ack" {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("never observed ack from follow-up message")
}

// Scenario: say() against a one-process-per-turn family that has already
// exited respawns with ResumeSessionID set, preserving the session id.
func TestSayResumesOneProcessPerTurnFamily(t *testing.T) {
	script := func(params spawnpolicy.SpawnParams) string {
		if params.ResumeSessionID != "" {
			return `echo '{"type":"result","subtype":"success","result":"resumed turn"}'`
		}
		return `echo '{"type":"system","subtype":"init","session_id":"real-resume-1"}'
echo '{"type":"result","subtype":"success","result":"first turn"}'`
	}
	policy := &fakePolicy{name: "codex", mode: spawnpolicy.ApprovalInlineIO, liveStdin: false, script: script}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"codex": policy}, "codex")
	defer m.Shutdown()

	id, _, err := m.Start(context.Background(), StartParams{Prompt: "first", Agent: "codex"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, m, id, sessionstore.StatusDone, 2*time.Second)

	sayID, _, err := m.Say(context.Background(), SayParams{SessionID: id, Message: "second"})
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	if sayID != id {
		t.Fatalf("expected same session id %q, got %q", id, sayID)
	}

	view := waitForStatus(t, m, id, sessionstore.StatusDone, 2*time.Second)
	if view.Result != "resumed turn" {
		t.Fatalf("result = %q, want resumed turn", view.Result)
	}
}

// Scenario: a TOOL_APPROVAL question raised mid-turn blocks until
// respond() delivers an answer, then the resolved Response flows back
// out of handleApprovalForSession.
func TestRespondResolvesPendingApprovalQuestion(t *testing.T) {
	policy := &fakePolicy{name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(spawnpolicy.SpawnParams) string { return "sleep 30" }}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	sess := sessionstore.NewSession("sess-approval-1", spawnpolicy.SpawnParams{}, "claude", 10)
	sess.ID = "sess-approval-1"
	sess.IsTempID = false
	if err := m.store.Insert(sess); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	respCh := make(chan approval.Response, 1)
	go func() {
		respCh <- m.handleApprovalForSession(sess, approval.Request{
			ToolName:  "Bash",
			ToolInput: map[string]any{"command": "rm -rf tmp/"},
		})
	}()

	deadline := time.Now().Add(time.Second)
	var questionID string
	for time.Now().Before(deadline) {
		sess.Lock()
		if sess.PendingQuestion != nil {
			questionID = sess.PendingQuestion.ID
		}
		sess.Unlock()
		if questionID != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if questionID == "" {
		t.Fatal("pending question never appeared")
	}

	view, err := m.Status("sess-approval-1", 10)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.PendingQuestion == nil || view.PendingQuestion.Kind != string(approval.KindToolApproval) {
		t.Fatalf("pending question view = %+v", view.PendingQuestion)
	}

	if _, _, err := m.Respond("sess-approval-1", questionID, []string{"allow"}); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	select {
	case resp := <-respCh:
		if resp.Behavior != approval.BehaviorAllow {
			t.Fatalf("resolved response = %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("approval never resolved")
	}

	if sess.GetStatus() != sessionstore.StatusActive {
		t.Fatalf("status after respond = %q, want active", sess.GetStatus())
	}
}

// Scenario: an unanswered question is denied automatically once the
// configured approval timeout elapses.
func TestApprovalTimesOutToDeny(t *testing.T) {
	env := testEnv()
	env.ApprovalTimeoutMs = 50
	policy := &fakePolicy{name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(spawnpolicy.SpawnParams) string { return "sleep 30" }}
	m := newTestManager(env, map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	sess := sessionstore.NewSession("sess-timeout-1", spawnpolicy.SpawnParams{}, "claude", 10)
	sess.ID = "sess-timeout-1"
	sess.IsTempID = false
	if err := m.store.Insert(sess); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	respCh := make(chan approval.Response, 1)
	go func() {
		respCh <- m.handleApprovalForSession(sess, approval.Request{ToolName: "Bash", ToolInput: map[string]any{}})
	}()

	select {
	case resp := <-respCh:
		if resp.Behavior != approval.BehaviorDeny {
			t.Fatalf("timeout response = %+v, want deny", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("question never timed out")
	}

	if sess.GetStatus() != sessionstore.StatusActive {
		t.Fatalf("status after timeout = %q, want active", sess.GetStatus())
	}
}

// Scenario: interrupt() returns without waiting for the process to
// actually exit, and the session's status reflects the request
// immediately.
func TestInterruptReturnsImmediately(t *testing.T) {
	policy := &fakePolicy{name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(spawnpolicy.SpawnParams) string {
			return `echo '{"type":"system","subtype":"init","session_id":"real-interrupt-1"}'
trap '' INT
sleep 30`
		},
	}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	id, _, err := m.Start(context.Background(), StartParams{Prompt: "work", Agent: "claude"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, m, id, sessionstore.StatusActive, time.Second)

	start := time.Now()
	_, status, err := m.Interrupt(id)
	if err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Interrupt blocked for %v, expected near-immediate return", elapsed)
	}
	if status != sessionstore.StatusInterrupted {
		t.Fatalf("status = %q, want interrupted", status)
	}
}

// Scenario: start() rejects a new session once count_active has reached
// max_sessions.
func TestStartRejectsOverCapacity(t *testing.T) {
	env := testEnv()
	env.MaxSessions = 1
	policy := &fakePolicy{name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(spawnpolicy.SpawnParams) string { return "sleep 30" }}
	m := newTestManager(env, map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	_, _, err := m.Start(context.Background(), StartParams{Prompt: "one", Agent: "claude"})
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}

	_, _, err = m.Start(context.Background(), StartParams{Prompt: "two", Agent: "claude"})
	if err != ErrCapacityExceeded {
		t.Fatalf("second Start error = %v, want ErrCapacityExceeded", err)
	}
}

// Scenario: every operation surfaces ErrUnknownSession for an id the
// store has never seen, except say(), which adopts it as a
// previously-known-elsewhere session per spec.md §4.8.2.
func TestUnknownSessionErrors(t *testing.T) {
	policy := &fakePolicy{name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(spawnpolicy.SpawnParams) string { return "true" }}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	if _, err := m.Status("nope", 10); err != ErrUnknownSession {
		t.Fatalf("Status error = %v, want ErrUnknownSession", err)
	}
	if _, _, err := m.Respond("nope", "q1", []string{"allow"}); err != ErrUnknownSession {
		t.Fatalf("Respond error = %v, want ErrUnknownSession", err)
	}
	if _, _, err := m.Interrupt("nope"); err != ErrUnknownSession {
		t.Fatalf("Interrupt error = %v, want ErrUnknownSession", err)
	}
}

// Scenario: respond() rejects an answer against the wrong question id,
// and a second respond() against an already-cleared question reports no
// pending question.
func TestRespondRejectsMismatchedQuestionID(t *testing.T) {
	policy := &fakePolicy{name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(spawnpolicy.SpawnParams) string { return "sleep 30" }}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	sess := sessionstore.NewSession("sess-mismatch-1", spawnpolicy.SpawnParams{}, "claude", 10)
	sess.ID = "sess-mismatch-1"
	sess.IsTempID = false
	if err := m.store.Insert(sess); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	go m.handleApprovalForSession(sess, approval.Request{ToolName: "Bash", ToolInput: map[string]any{}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sess.GetStatus() != sessionstore.StatusAwaitingInput {
		time.Sleep(10 * time.Millisecond)
	}
	if sess.GetStatus() != sessionstore.StatusAwaitingInput {
		t.Fatal("question never arrived")
	}

	if _, _, err := m.Respond("sess-mismatch-1", "not-the-real-id", []string{"allow"}); err != ErrIDMismatch {
		t.Fatalf("Respond error = %v, want ErrIDMismatch", err)
	}

	sess.Lock()
	questionID := sess.PendingQuestion.ID
	sess.Unlock()
	if _, _, err := m.Respond("sess-mismatch-1", questionID, []string{"allow"}); err != nil {
		t.Fatalf("Respond with correct id: %v", err)
	}
	if _, _, err := m.Respond("sess-mismatch-1", questionID, []string{"allow"}); err != ErrNoPendingQuestion {
		t.Fatalf("second Respond error = %v, want ErrNoPendingQuestion", err)
	}
}

// Scenario: list() merges an in-flight session that has no on-disk
// index entry yet.
func TestListIncludesLiveSessionNotYetOnDisk(t *testing.T) {
	policy := &fakePolicy{name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(spawnpolicy.SpawnParams) string {
			return `echo '{"type":"system","subtype":"init","session_id":"real-list-1"}'
sleep 30`
		},
	}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"claude": policy}, "claude")
	defer m.Shutdown()

	id, _, err := m.Start(context.Background(), StartParams{Prompt: "x", Agent: "claude", WorkingDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, m, id, sessionstore.StatusActive, time.Second)

	entries, err := m.List("", 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var found bool
	for _, e := range entries {
		if e.SessionID == id {
			found = true
			if !e.IsActive || e.Status != string(sessionstore.StatusActive) {
				t.Fatalf("entry = %+v", e)
			}
		}
	}
	if !found {
		t.Fatalf("expected %q in list, got %+v", id, entries)
	}
}

// Scenario: Shutdown signals SIGTERM and gives a process the chance to
// exit on its own instead of jumping straight to SIGKILL.
func TestShutdownSendsSIGTERMBeforeKill(t *testing.T) {
	policy := &fakePolicy{name: "claude", mode: spawnpolicy.ApprovalCallbackBridge, liveStdin: true,
		script: func(spawnpolicy.SpawnParams) string {
			return `echo '{"type":"system","subtype":"init","session_id":"real-shutdown-1"}'
trap 'echo term > /dev/null; exit 7' TERM
sleep 30 & wait`
		},
	}
	m := newTestManager(testEnv(), map[string]spawnpolicy.Policy{"claude": policy}, "claude")

	id, _, err := m.Start(context.Background(), StartParams{Prompt: "work", Agent: "claude"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, m, id, sessionstore.StatusActive, time.Second)

	start := time.Now()
	m.Shutdown()
	elapsed := time.Since(start)
	if elapsed > shutdownGrace {
		t.Fatalf("Shutdown took %v, expected the TERM handler to exit well inside the grace period", elapsed)
	}
}
