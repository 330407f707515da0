package toolsurface

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/agent-command/agentd/internal/sessionstore"
	"github.com/agent-command/agentd/internal/supervisor"
)

type fakeCore struct {
	startID     string
	startStatus sessionstore.Status
	startErr    error

	statusView supervisor.StatusView
	statusErr  error

	listEntries []supervisor.ListEntry
	listErr     error

	lastStartParams supervisor.StartParams
}

func (f *fakeCore) Start(ctx context.Context, params supervisor.StartParams) (string, sessionstore.Status, error) {
	f.lastStartParams = params
	return f.startID, f.startStatus, f.startErr
}
func (f *fakeCore) Say(ctx context.Context, params supervisor.SayParams) (string, sessionstore.Status, error) {
	return params.SessionID, sessionstore.StatusActive, nil
}
func (f *fakeCore) Status(sessionID string, n int) (supervisor.StatusView, error) {
	return f.statusView, f.statusErr
}
func (f *fakeCore) Respond(sessionID, questionID string, answers []string) (string, sessionstore.Status, error) {
	return sessionID, sessionstore.StatusActive, nil
}
func (f *fakeCore) Interrupt(sessionID string) (string, sessionstore.Status, error) {
	return sessionID, sessionstore.StatusInterrupted, nil
}
func (f *fakeCore) List(filterDir string, limit int) ([]supervisor.ListEntry, error) {
	return f.listEntries, f.listErr
}

func TestDispatchStartMapsFieldsAndResult(t *testing.T) {
	core := &fakeCore{startID: "sess-1", startStatus: sessionstore.StatusActive}
	payload, _ := json.Marshal(startRequest{
		RequestID: "r1",
		Prompt:    "fix the bug",
		Agent:     "claude",
		MaxTurns:  5,
	})

	result := dispatch(context.Background(), core, TypeStart, payload)

	if !result.OK || result.SessionID != "sess-1" || result.Status != string(sessionstore.StatusActive) {
		t.Fatalf("result = %+v", result)
	}
	if result.RequestID != "r1" {
		t.Fatalf("request id = %q", result.RequestID)
	}
	if core.lastStartParams.Prompt != "fix the bug" || core.lastStartParams.MaxTurns != 5 {
		t.Fatalf("start params = %+v", core.lastStartParams)
	}
}

func TestDispatchStartErrorIsNotOK(t *testing.T) {
	core := &fakeCore{startErr: errors.New("capacity exceeded")}
	payload, _ := json.Marshal(startRequest{RequestID: "r2", Prompt: "x"})

	result := dispatch(context.Background(), core, TypeStart, payload)

	if result.OK {
		t.Fatal("expected OK=false")
	}
	if result.Error != "capacity exceeded" {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestDispatchStatusRendersPendingQuestion(t *testing.T) {
	core := &fakeCore{statusView: supervisor.StatusView{
		SessionID: "sess-2",
		Status:    "awaiting_input",
		PendingQuestion: &supervisor.PendingQuestionView{
			ID:   "q1",
			Kind: "TOOL_APPROVAL",
			Questions: []supervisor.SubQuestionView{
				{Question: "Allow Bash: rm -rf tmp/?", Options: []string{"allow", "deny"}},
			},
		},
	}}
	payload, _ := json.Marshal(statusRequest{RequestID: "r3", SessionID: "sess-2"})

	result := dispatch(context.Background(), core, TypeStatus, payload)

	if !result.OK || result.StatusView == nil {
		t.Fatalf("result = %+v", result)
	}
	if result.StatusView.PendingQuestion == nil || result.StatusView.PendingQuestion.ID != "q1" {
		t.Fatalf("pending question = %+v", result.StatusView.PendingQuestion)
	}
	if len(result.StatusView.PendingQuestion.Questions) != 1 {
		t.Fatalf("questions = %+v", result.StatusView.PendingQuestion.Questions)
	}
}

func TestDispatchListRendersEntries(t *testing.T) {
	core := &fakeCore{listEntries: []supervisor.ListEntry{
		{SessionID: "a", IsActive: true, Status: "active"},
		{SessionID: "b", IsActive: false, Status: "done"},
	}}
	payload, _ := json.Marshal(listRequest{RequestID: "r4", Limit: 50})

	result := dispatch(context.Background(), core, TypeList, payload)

	if !result.OK || len(result.Sessions) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if result.Sessions[0].SessionID != "a" || result.Sessions[1].Status != "done" {
		t.Fatalf("sessions = %+v", result.Sessions)
	}
}

func TestDispatchUnknownTypeIsError(t *testing.T) {
	result := dispatch(context.Background(), &fakeCore{}, "tool.bogus", json.RawMessage(`{}`))
	if result.OK {
		t.Fatal("expected OK=false for unknown type")
	}
}

func TestDispatchMalformedPayloadIsError(t *testing.T) {
	result := dispatch(context.Background(), &fakeCore{}, TypeStart, json.RawMessage(`not json`))
	if result.OK || result.Error == "" {
		t.Fatalf("result = %+v", result)
	}
}
