package events

import (
	"strings"
	"testing"
)

func TestDecodeInit(t *testing.T) {
	line := `{"type":"system","subtype":"init","session_id":"real-1"}`
	var got []Event
	err := Decode(strings.NewReader(line+"\n"), func(e Event) { got = append(got, e) }, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Kind != KindInit {
		t.Fatalf("got %+v", got)
	}
	if got[0].Init.SessionID != "real-1" {
		t.Fatalf("session id = %q", got[0].Init.SessionID)
	}
}

func TestDecodeTextDeltaAndResult(t *testing.T) {
	lines := []string{
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"World!"}]}}`,
		`{"type":"result","subtype":"success","result":"World!","total_cost_usd":0.01,"num_turns":1}`,
	}
	var got []Event
	err := Decode(strings.NewReader(strings.Join(lines, "\n")+"\n"), func(e Event) { got = append(got, e) }, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Kind != KindStream || got[0].Stream.StreamKind != StreamTextDelta || got[0].Stream.Text != "World!" {
		t.Fatalf("event 0 = %+v", got[0])
	}
	if got[1].Kind != KindResult || got[1].Result.Status != ResultSuccess || got[1].Result.Text != "World!" {
		t.Fatalf("event 1 = %+v", got[1])
	}
}

func TestDecodeToolUse(t *testing.T) {
	line := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Edit","input":{"file_path":"a.go"}}]}}`
	var got []Event
	err := Decode(strings.NewReader(line+"\n"), func(e Event) { got = append(got, e) }, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Stream.StreamKind != StreamToolUseStart {
		t.Fatalf("got %+v", got)
	}
	if got[0].Stream.ToolName != "Edit" || got[0].Stream.ToolInput["file_path"] != "a.go" {
		t.Fatalf("tool use = %+v", got[0].Stream)
	}
}

func TestDecodeParallelToolUseEmitsOneEventPerBlock(t *testing.T) {
	line := `{"type":"assistant","message":{"role":"assistant","content":[` +
		`{"type":"tool_use","id":"t1","name":"Edit","input":{"file_path":"a.go"}},` +
		`{"type":"tool_use","id":"t2","name":"Bash","input":{"command":"ls"}}` +
		`]}}`
	var got []Event
	err := Decode(strings.NewReader(line+"\n"), func(e Event) { got = append(got, e) }, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (one per tool_use block)", len(got))
	}
	if got[0].Stream.ToolUseID != "t1" || got[0].Stream.ToolName != "Edit" {
		t.Fatalf("event 0 = %+v", got[0].Stream)
	}
	if got[1].Stream.ToolUseID != "t2" || got[1].Stream.ToolName != "Bash" {
		t.Fatalf("event 1 = %+v", got[1].Stream)
	}
}

func TestDecodeParallelToolResultsEmitOneEventPerBlock(t *testing.T) {
	line := `{"type":"user","message":{"role":"user","content":[` +
		`{"type":"tool_result","id":"t1"},` +
		`{"type":"tool_result","id":"t2"}` +
		`]}}`
	var got []Event
	err := Decode(strings.NewReader(line+"\n"), func(e Event) { got = append(got, e) }, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (one per tool_result block)", len(got))
	}
	if got[0].Stream.StreamKind != StreamToolUseStop || got[0].Stream.ToolUseID != "t1" {
		t.Fatalf("event 0 = %+v", got[0].Stream)
	}
	if got[1].Stream.StreamKind != StreamToolUseStop || got[1].Stream.ToolUseID != "t2" {
		t.Fatalf("event 1 = %+v", got[1].Stream)
	}
}

func TestDecodeMalformedLineIsSkippedNotFatal(t *testing.T) {
	lines := []string{
		`not json at all`,
		`{"type":"result","subtype":"success","result":"ok"}`,
	}
	var got []Event
	var errs []string
	err := Decode(strings.NewReader(strings.Join(lines, "\n")+"\n"), func(e Event) { got = append(got, e) }, func(line string, err error) {
		errs = append(errs, line)
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("want 1 decode error, got %d", len(errs))
	}
	if len(got) != 1 || got[0].Kind != KindResult {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeUnknownIsPreserved(t *testing.T) {
	line := `{"type":"some_future_event","odd_field":42}`
	var got []Event
	err := Decode(strings.NewReader(line+"\n"), func(e Event) { got = append(got, e) }, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Kind != KindUnknown || got[0].Unknown.Type != "some_future_event" {
		t.Fatalf("got %+v", got)
	}
}
