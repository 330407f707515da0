package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agent-command/agentd/internal/approval"
	"github.com/agent-command/agentd/internal/sessionstore"
	"github.com/agent-command/agentd/internal/spawnpolicy"
)

// Start implements spec.md §4.8.1.
func (m *Manager) Start(ctx context.Context, params StartParams) (string, sessionstore.Status, error) {
	policy, err := m.resolvePolicy(params.Agent)
	if err != nil {
		return "", "", err
	}
	if err := m.store.CheckCapacity(); err != nil {
		return "", "", ErrCapacityExceeded
	}

	tempID := "temp-" + uuid.NewString()
	spawnParams := spawnpolicy.SpawnParams{
		Prompt:           params.Prompt,
		WorkingDirectory: params.WorkingDirectory,
		Model:            params.Model,
		ApprovalPolicy:   params.ApprovalPolicy,
		AllowedTools:     params.AllowedTools,
		DisallowedTools:  params.DisallowedTools,
		MaxTurns:         params.MaxTurns,
		MaxBudget:        params.MaxBudget,
		SystemPrompt:     params.SystemPrompt,
		Images:           params.Images,
		SkipGitCheck:     params.SkipGitCheck,
		BypassApprovals:  params.BypassApprovals,
	}

	sess := sessionstore.NewSession(tempID, spawnParams, policy.Name(), m.env.EventBufferSize)

	proc, err := m.spawnFor(sess, policy, spawnParams)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	sess.Lock()
	sess.Process = proc
	sess.Unlock()

	if err := m.store.Insert(sess); err != nil {
		_ = proc.Kill()
		return "", "", ErrCapacityExceeded
	}

	deadline := time.Now().Add(startGrace)
	for sess.GetIsTempID() && time.Now().Before(deadline) {
		time.Sleep(startPollEvery)
	}

	return sess.GetID(), sess.GetStatus(), nil
}

// Say implements spec.md §4.8.2.
func (m *Manager) Say(ctx context.Context, params SayParams) (string, sessionstore.Status, error) {
	sess, ok := m.store.Get(params.SessionID)
	if !ok {
		sess = sessionstore.NewSession(params.SessionID, spawnpolicy.SpawnParams{}, m.defaultPolicy, m.env.EventBufferSize)
		sess.Lock()
		sess.ID = params.SessionID
		sess.IsTempID = false
		sess.Status = sessionstore.StatusDone
		sess.Unlock()
		_ = m.store.Insert(sess) // no live process; capacity check always passes
	}

	policy, err := m.resolvePolicy(sess.PolicyName)
	if err != nil {
		return params.SessionID, "", err
	}

	sess.Lock()
	proc := sess.Process
	status := sess.Status
	sess.Unlock()

	modeChange := params.ApprovalPolicyOverride != ""

	switch {
	case proc != nil && status == sessionstore.StatusActive && !modeChange && policy.SupportsLiveStdin():
		line, err := spawnpolicy.StdinMessage(sess.GetID(), params.Message)
		if err != nil {
			return params.SessionID, "", err
		}
		if err := proc.WriteStdin(line); err != nil {
			return params.SessionID, "", err
		}
		return sess.GetID(), sessionstore.StatusActive, nil

	case proc != nil && modeChange:
		_ = proc.Interrupt(ctx, sayModeChangeMax)
		sess.Lock()
		sess.Process = nil
		sess.SpawnParams.ApprovalPolicy = params.ApprovalPolicyOverride
		sess.Unlock()
		return m.resume(sess, policy, params)

	default:
		if !policy.SupportsLiveStdin() && proc != nil && status == sessionstore.StatusActive {
			return params.SessionID, "", ErrBusy
		}
		return m.resume(sess, policy, params)
	}
}

func (m *Manager) resume(sess *sessionstore.Session, policy spawnpolicy.Policy, params SayParams) (string, sessionstore.Status, error) {
	if err := m.store.CheckCapacity(); err != nil {
		return sess.GetID(), "", ErrCapacityExceeded
	}

	sess.Lock()
	resumeParams := sess.SpawnParams
	resumeParams.ResumeSessionID = sess.ID
	resumeParams.FollowUpMessage = params.Message
	if len(params.Images) > 0 {
		resumeParams.Images = params.Images
	}
	sess.Unlock()

	proc, err := m.spawnFor(sess, policy, resumeParams)
	if err != nil {
		sess.Lock()
		sess.Status = sessionstore.StatusError
		sess.Err = err.Error()
		sess.Unlock()
		return sess.GetID(), sessionstore.StatusError, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	sess.Lock()
	sess.Process = proc
	sess.Status = sessionstore.StatusActive
	sess.SpawnParams = resumeParams
	sess.Unlock()

	return sess.GetID(), sessionstore.StatusActive, nil
}

// Status implements spec.md §4.8.3.
func (m *Manager) Status(sessionID string, n int) (StatusView, error) {
	sess, ok := m.store.Get(sessionID)
	if !ok {
		return StatusView{}, ErrUnknownSession
	}
	if n <= 0 {
		n = 50
	}

	sess.Lock()
	defer sess.Unlock()

	view := StatusView{
		SessionID:    sess.ID,
		Status:       string(sess.Status),
		Result:       sess.Result,
		RecentOutput: sess.RecentText(n),
		Metrics:      sess.Metrics,
	}
	if u, ok := m.AccountUsage(sess.PolicyName); ok {
		view.AccountUsage = u
	}
	if sess.Status == sessionstore.StatusAwaitingInput && sess.PendingQuestion != nil {
		view.PendingQuestion = toPendingQuestionView(sess.PendingQuestion)
	}
	for _, tu := range sess.Metrics.ToolUses {
		view.ToolUseEvents = append(view.ToolUseEvents, ToolUseView{Name: tu.Name, Status: string(tu.Status)})
	}
	return view, nil
}

func toPendingQuestionView(pq *sessionstore.PendingQuestion) *PendingQuestionView {
	view := &PendingQuestionView{ID: pq.ID, Kind: string(pq.Kind)}
	if len(pq.SubQuestions) > 0 {
		for _, sq := range pq.SubQuestions {
			view.Questions = append(view.Questions, SubQuestionView{Question: sq.Question, Options: sq.Options})
		}
		return view
	}
	view.Questions = []SubQuestionView{{Question: pq.Prompt, Options: pq.Options}}
	return view
}

// Respond implements spec.md §4.8.4.
func (m *Manager) Respond(sessionID, questionID string, answers []string) (string, sessionstore.Status, error) {
	sess, ok := m.store.Get(sessionID)
	if !ok {
		return "", "", ErrUnknownSession
	}

	sess.Lock()
	pq := sess.PendingQuestion
	if pq == nil {
		sess.Unlock()
		return sessionID, "", ErrNoPendingQuestion
	}
	if pq.ID != questionID {
		sess.Unlock()
		return sessionID, "", ErrIDMismatch
	}
	resolver := pq.Resolver
	originalInput := pq.OriginalInput
	kind := pq.Kind
	sess.PendingQuestion = nil
	sess.Status = sessionstore.StatusActive
	sess.Unlock()

	resp := approval.Translate(kind, originalInput, answers)
	resolver(resp)

	return sess.GetID(), sessionstore.StatusActive, nil
}

// Interrupt implements spec.md §4.8.5.
func (m *Manager) Interrupt(sessionID string) (string, sessionstore.Status, error) {
	sess, ok := m.store.Get(sessionID)
	if !ok {
		return "", "", ErrUnknownSession
	}

	sess.Lock()
	proc := sess.Process
	sess.Unlock()
	if proc == nil {
		return sessionID, "", ErrNoActiveProcess
	}

	if err := proc.InterruptAsync(interruptGrace); err != nil {
		return sessionID, "", fmt.Errorf("interrupt: %w", err)
	}

	sess.Lock()
	sess.Status = sessionstore.StatusInterrupted
	sess.Unlock()

	return sess.GetID(), sessionstore.StatusInterrupted, nil
}
