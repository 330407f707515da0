package toolsurface

import (
	"context"
	"encoding/json"

	"github.com/agent-command/agentd/internal/sessionstore"
	"github.com/agent-command/agentd/internal/supervisor"
)

// ToolCore is the six tool operations, satisfied by *supervisor.Manager.
// Declared here so dispatch can be tested against a fake without
// spawning real agent processes.
type ToolCore interface {
	Start(ctx context.Context, params supervisor.StartParams) (string, sessionstore.Status, error)
	Say(ctx context.Context, params supervisor.SayParams) (string, sessionstore.Status, error)
	Status(sessionID string, n int) (supervisor.StatusView, error)
	Respond(sessionID, questionID string, answers []string) (string, sessionstore.Status, error)
	Interrupt(sessionID string) (string, sessionstore.Status, error)
	List(filterDir string, limit int) ([]supervisor.ListEntry, error)
}

// dispatch decodes payload according to msgType, calls the matching
// ToolCore method, and renders a resultPayload. It never returns an
// error itself — a malformed payload or a failed operation both
// become an {ok: false, error: "..."} result, since the socket's only
// obligation is to answer every request it accepted.
func dispatch(ctx context.Context, core ToolCore, msgType string, payload json.RawMessage) resultPayload {
	switch msgType {
	case TypeStart:
		return dispatchStart(ctx, core, payload)
	case TypeSay:
		return dispatchSay(ctx, core, payload)
	case TypeStatus:
		return dispatchStatus(core, payload)
	case TypeRespond:
		return dispatchRespond(core, payload)
	case TypeInterrupt:
		return dispatchInterrupt(core, payload)
	case TypeList:
		return dispatchList(core, payload)
	default:
		return resultPayload{Error: "unknown request type: " + msgType}
	}
}

func dispatchStart(ctx context.Context, core ToolCore, payload json.RawMessage) resultPayload {
	var req startRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return resultPayload{Error: err.Error()}
	}
	id, status, err := core.Start(ctx, supervisor.StartParams{
		Prompt:           req.Prompt,
		Agent:            req.Agent,
		WorkingDirectory: req.WorkingDirectory,
		Model:            req.Model,
		ApprovalPolicy:   req.ApprovalPolicy,
		AllowedTools:     req.AllowedTools,
		DisallowedTools:  req.DisallowedTools,
		MaxTurns:         req.MaxTurns,
		MaxBudget:        req.MaxBudget,
		SystemPrompt:     req.SystemPrompt,
		Images:           req.Images,
		SkipGitCheck:     req.SkipGitCheck,
		BypassApprovals:  req.BypassApprovals,
	})
	if err != nil {
		return resultPayload{RequestID: req.RequestID, Error: err.Error()}
	}
	return resultPayload{RequestID: req.RequestID, OK: true, SessionID: id, Status: string(status)}
}

func dispatchSay(ctx context.Context, core ToolCore, payload json.RawMessage) resultPayload {
	var req sayRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return resultPayload{Error: err.Error()}
	}
	id, status, err := core.Say(ctx, supervisor.SayParams{
		SessionID:              req.SessionID,
		Message:                req.Message,
		Images:                 req.Images,
		ApprovalPolicyOverride: req.ApprovalPolicyOverride,
	})
	if err != nil {
		return resultPayload{RequestID: req.RequestID, SessionID: req.SessionID, Error: err.Error()}
	}
	return resultPayload{RequestID: req.RequestID, OK: true, SessionID: id, Status: string(status)}
}

func dispatchStatus(core ToolCore, payload json.RawMessage) resultPayload {
	var req statusRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return resultPayload{Error: err.Error()}
	}
	view, err := core.Status(req.SessionID, req.RecentOutputLines)
	if err != nil {
		return resultPayload{RequestID: req.RequestID, SessionID: req.SessionID, Error: err.Error()}
	}
	return resultPayload{RequestID: req.RequestID, OK: true, SessionID: view.SessionID, StatusView: toStatusViewDTO(view)}
}

func dispatchRespond(core ToolCore, payload json.RawMessage) resultPayload {
	var req respondRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return resultPayload{Error: err.Error()}
	}
	id, status, err := core.Respond(req.SessionID, req.QuestionID, req.Answers)
	if err != nil {
		return resultPayload{RequestID: req.RequestID, SessionID: req.SessionID, Error: err.Error()}
	}
	return resultPayload{RequestID: req.RequestID, OK: true, SessionID: id, Status: string(status)}
}

func dispatchInterrupt(core ToolCore, payload json.RawMessage) resultPayload {
	var req interruptRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return resultPayload{Error: err.Error()}
	}
	id, status, err := core.Interrupt(req.SessionID)
	if err != nil {
		return resultPayload{RequestID: req.RequestID, SessionID: req.SessionID, Error: err.Error()}
	}
	return resultPayload{RequestID: req.RequestID, OK: true, SessionID: id, Status: string(status)}
}

func dispatchList(core ToolCore, payload json.RawMessage) resultPayload {
	var req listRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return resultPayload{Error: err.Error()}
	}
	entries, err := core.List(req.FilterDir, req.Limit)
	if err != nil {
		return resultPayload{RequestID: req.RequestID, Error: err.Error()}
	}
	out := make([]listEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = listEntryDTO{
			SessionID: e.SessionID,
			Project:   e.Project,
			Display:   e.Display,
			Timestamp: e.Timestamp,
			IsActive:  e.IsActive,
			Status:    e.Status,
		}
	}
	return resultPayload{RequestID: req.RequestID, OK: true, Sessions: out}
}

func toStatusViewDTO(view supervisor.StatusView) *statusViewDTO {
	dto := &statusViewDTO{
		SessionID:    view.SessionID,
		Status:       view.Status,
		Result:       view.Result,
		RecentOutput: view.RecentOutput,
		CostUSD:      view.Metrics.CostUSD,
		InputTokens:  view.Metrics.InputTokens,
		OutputTokens: view.Metrics.OutputTokens,
		Turns:        view.Metrics.Turns,
	}
	for _, tu := range view.ToolUseEvents {
		dto.ToolUseEvents = append(dto.ToolUseEvents, toolUseDTO{Name: tu.Name, Status: tu.Status})
	}
	if view.PendingQuestion != nil {
		pq := &pendingQuestionDTO{ID: view.PendingQuestion.ID, Kind: view.PendingQuestion.Kind}
		for _, q := range view.PendingQuestion.Questions {
			pq.Questions = append(pq.Questions, subQuestionDTO{Question: q.Question, Options: q.Options})
		}
		dto.PendingQuestion = pq
	}
	return dto
}
