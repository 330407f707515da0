package supervisor

import (
	"fmt"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/agent-command/agentd/internal/approval"
	"github.com/agent-command/agentd/internal/events"
	"github.com/agent-command/agentd/internal/sessionstore"
	"github.com/agent-command/agentd/internal/spawnproc"
)

// handleEvent implements spec.md §4.8.7.
func (m *Manager) handleEvent(sess *sessionstore.Session, e events.Event) {
	sess.Lock()
	sess.AppendEvent(e)

	switch e.Kind {
	case events.KindInit:
		if sess.IsTempID && e.Init != nil {
			oldID := sess.ID
			sess.ID = e.Init.SessionID
			sess.IsTempID = false
			sess.Unlock()
			m.store.Rekey(oldID, e.Init.SessionID)
			return
		}

	case events.KindStream:
		if e.Stream != nil {
			switch e.Stream.StreamKind {
			case events.StreamToolUseStart:
				sess.Metrics.ToolUses = append(sess.Metrics.ToolUses, sessionstore.ToolUseRecord{
					ToolUseID: e.Stream.ToolUseID,
					Name:      e.Stream.ToolName,
					Status:    sessionstore.ToolUseRunning,
				})
			case events.StreamToolUseStop:
				markToolUseCompleted(sess, e.Stream.ToolUseID)
			}
		}

	case events.KindResult:
		if e.Result != nil {
			switch e.Result.Status {
			case events.ResultSuccess:
				sess.Status = sessionstore.StatusDone
				sess.Result = e.Result.Text
			case events.ResultInterrupted:
				sess.Status = sessionstore.StatusInterrupted
			case events.ResultError:
				sess.Status = sessionstore.StatusError
				sess.Err = e.Result.Text
			}
			m.metrics.RecordTurnOutcome(string(sess.Status))
			if e.Result.Metrics != nil {
				sess.Metrics.CostUSD = e.Result.Metrics.CostUSD
				sess.Metrics.InputTokens = e.Result.Metrics.InputTokens
				sess.Metrics.OutputTokens = e.Result.Metrics.OutputTokens
				sess.Metrics.Turns = e.Result.Metrics.Turns
			}
		}
	}

	sess.Unlock()
}

// markToolUseCompleted marks the still-running tool use matching
// toolUseID completed, or if toolUseID is empty/unmatched, the most
// recently started still-running tool use. Caller must hold sess's lock.
func markToolUseCompleted(sess *sessionstore.Session, toolUseID string) {
	uses := sess.Metrics.ToolUses
	if toolUseID != "" {
		for i := len(uses) - 1; i >= 0; i-- {
			if uses[i].ToolUseID == toolUseID && uses[i].Status == sessionstore.ToolUseRunning {
				uses[i].Status = sessionstore.ToolUseCompleted
				return
			}
		}
	}
	for i := len(uses) - 1; i >= 0; i-- {
		if uses[i].Status == sessionstore.ToolUseRunning {
			uses[i].Status = sessionstore.ToolUseCompleted
			return
		}
	}
}

// handleExit implements spec.md §4.8.8.
func (m *Manager) handleExit(sess *sessionstore.Session, result spawnproc.ExitResult) {
	sess.Lock()
	defer sess.Unlock()

	terminal := sess.Status == sessionstore.StatusDone ||
		sess.Status == sessionstore.StatusError ||
		sess.Status == sessionstore.StatusInterrupted

	if !terminal {
		switch {
		case result.Signal == syscall.SIGINT.String():
			sess.Status = sessionstore.StatusInterrupted
		case result.ExitCode != nil && *result.ExitCode == 0:
			sess.Status = sessionstore.StatusDone
		default:
			code := -1
			if result.ExitCode != nil {
				code = *result.ExitCode
			}
			sess.Status = sessionstore.StatusError
			sess.Err = fmt.Sprintf("process exited with code %d", code)
		}
		m.metrics.RecordTurnOutcome(string(sess.Status))
	}
	m.metrics.DecActiveProcesses()
	sess.Process = nil
}

// handleApprovalCallback is the ApprovalHandler wired into the shared
// callback-bridge listener; sessionIDLabel is whatever the agent's
// auxiliary approval program reported, resolved via the Session
// Store's lookup-fallback heuristic (spec.md §4.7).
func (m *Manager) handleApprovalCallback(sessionIDLabel string, req approval.Request) approval.Response {
	sess, ok := m.store.ResolveApprovalSession(sessionIDLabel)
	if !ok {
		return approval.Response{Behavior: approval.BehaviorDeny, Message: "no matching session"}
	}
	return m.handleApprovalForSession(sess, req)
}

// handleApprovalForSession implements spec.md §4.8.9 against a known
// session: it synthesizes a question, registers it with C4, marks the
// session AWAITING_INPUT, and blocks until respond() or the timeout
// resolves it.
func (m *Manager) handleApprovalForSession(sess *sessionstore.Session, req approval.Request) approval.Response {
	q := approval.Classify(req)
	questionID := uuid.NewString()
	raisedAt := time.Now()

	respCh, resolver := m.registry.Register(questionID, func() approval.Response {
		resp := approval.DenyOnTimeout(q.Kind)
		sess.Lock()
		sess.PendingQuestion = nil
		sess.Status = sessionstore.StatusActive
		sess.Unlock()
		return resp
	})

	pq := &sessionstore.PendingQuestion{
		ID:            questionID,
		Kind:          q.Kind,
		Prompt:        q.Prompt,
		Options:       q.Options,
		SubQuestions:  q.SubQuestions,
		OriginalInput: q.OriginalInput,
		Resolver:      resolver,
	}

	sess.Lock()
	sess.PendingQuestion = pq
	sess.Status = sessionstore.StatusAwaitingInput
	sess.Unlock()

	resp := <-respCh
	m.metrics.RecordApproval(string(q.Kind), approvalOutcome(resp), time.Since(raisedAt))
	return resp
}

// approvalOutcome labels a resolved Response for metrics: the
// callback-bridge and inline-IO response shapes disagree on which
// field carries the decision, so both are consulted.
func approvalOutcome(resp approval.Response) string {
	if resp.Message == "request timed out" || resp.Reason == "request timed out" {
		return "timed_out"
	}
	approved := resp.Approved
	if !resp.IsApproveDeny {
		approved = resp.Behavior == approval.BehaviorAllow
	}
	if approved {
		return "approved"
	}
	return "denied"
}
