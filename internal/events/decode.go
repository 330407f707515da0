package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// DecodeErrorHandler is invoked for a line that failed to parse as JSON.
// It never halts decoding.
type DecodeErrorHandler func(line string, err error)

// EventHandler receives each decoded event in arrival order.
type EventHandler func(Event)

// rawEnvelope is the wire shape emitted by the agent CLI's line-delimited
// JSON stream. Only the fields needed to classify and extract an Event are
// modeled; everything else rides along in Raw for Unknown events.
type rawEnvelope struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Message   *rawMessage     `json:"message"`
	Result    string          `json:"result"`
	IsError   bool            `json:"is_error"`
	Usage     *rawUsage       `json:"usage"`
	TotalCost float64         `json:"total_cost_usd"`
	NumTurns  int             `json:"num_turns"`
	Raw       json.RawMessage `json:"-"`
}

type rawMessage struct {
	Role    string        `json:"role"`
	Content []rawContent  `json:"content"`
}

type rawContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type rawUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Decode reads newline-delimited JSON events from r, invoking onEvent for
// each decoded event in the order it arrives on the stream. Lines that fail
// to parse as JSON are reported to onDecodeError (if non-nil) and skipped;
// they never terminate decoding. Decode returns only on a reader error
// (including io.EOF, reported as nil).
func Decode(r io.Reader, onEvent EventHandler, onDecodeError DecodeErrorHandler) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}

		var raw rawEnvelope
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			if onDecodeError != nil {
				onDecodeError(line, err)
			}
			continue
		}
		raw.Raw = json.RawMessage(line)

		for _, ev := range classify(raw) {
			onEvent(ev)
		}
	}

	return scanner.Err()
}

// classify turns one decoded line into the events it carries. Most
// line types carry exactly one; an assistant/user message can carry
// several — a parallel tool call emits one "tool_use" content block
// per call in the same message, and their results come back together
// as several "tool_result" blocks in one user message — so this
// returns a slice rather than a single Event.
func classify(raw rawEnvelope) []Event {
	switch raw.Type {
	case "system":
		if raw.Subtype == "init" && raw.SessionID != "" {
			return []Event{{Kind: KindInit, Init: &InitEvent{
				SessionID: raw.SessionID,
				Timestamp: time.Now().UTC(),
			}}}
		}
	case "assistant", "user":
		if raw.Message != nil {
			if evs := classifyMessage(raw.Message); len(evs) > 0 {
				return evs
			}
		}
	case "result":
		status := ResultSuccess
		if raw.IsError {
			status = ResultError
		}
		if raw.Subtype == "interrupted" {
			status = ResultInterrupted
		} else if raw.Subtype == "error" {
			status = ResultError
		} else if raw.Subtype == "success" {
			status = ResultSuccess
		}

		var metrics *Metrics
		if raw.Usage != nil || raw.TotalCost != 0 || raw.NumTurns != 0 {
			metrics = &Metrics{
				CostUSD: raw.TotalCost,
				Turns:   raw.NumTurns,
			}
			if raw.Usage != nil {
				metrics.InputTokens = raw.Usage.InputTokens
				metrics.OutputTokens = raw.Usage.OutputTokens
			}
		}

		return []Event{{Kind: KindResult, Result: &ResultEvent{
			Status:  status,
			Text:    raw.Result,
			Metrics: metrics,
		}}}
	}

	return []Event{{Kind: KindUnknown, Unknown: &UnknownEvent{
		Type: raw.Type,
		Raw:  raw.Raw,
	}}}
}

// classifyMessage returns one Event per recognized content block,
// preserving block order, instead of stopping at the first match —
// a message with parallel tool calls carries several "tool_use"
// blocks, and their results come back as several "tool_result"
// blocks in the matching user message.
func classifyMessage(msg *rawMessage) []Event {
	var events []Event
	for _, part := range msg.Content {
		switch part.Type {
		case "text":
			if part.Text != "" {
				events = append(events, Event{Kind: KindStream, Stream: &StreamEvent{
					StreamKind: StreamTextDelta,
					Text:       part.Text,
				}})
			}
		case "tool_use":
			var input map[string]any
			if len(part.Input) > 0 {
				_ = json.Unmarshal(part.Input, &input)
			}
			events = append(events, Event{Kind: KindStream, Stream: &StreamEvent{
				StreamKind: StreamToolUseStart,
				ToolUseID:  part.ID,
				ToolName:   part.Name,
				ToolInput:  input,
			}})
		case "tool_result":
			events = append(events, Event{Kind: KindStream, Stream: &StreamEvent{
				StreamKind: StreamToolUseStop,
				ToolUseID:  part.ID,
			}})
		}
	}
	return events
}

// DecodeError wraps a line-parse failure for callers that want a typed
// value instead of a raw error (e.g. to log with a bounded-length line).
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
