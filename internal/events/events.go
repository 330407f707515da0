// Package events decodes an agent CLI's line-delimited JSON stdout into a
// closed sum of typed events, tolerating malformed lines the way a
// production log tailer tolerates a torn write.
package events

import (
	"encoding/json"
	"time"
)

// Kind discriminates the event sum type.
type Kind string

const (
	KindInit    Kind = "init"
	KindStream  Kind = "stream"
	KindResult  Kind = "result"
	KindUnknown Kind = "unknown"
)

// StreamKind discriminates the inner payload of a Stream event.
type StreamKind string

const (
	StreamTextDelta     StreamKind = "text_delta"
	StreamToolUseStart  StreamKind = "tool_use_start"
	StreamToolUseStop   StreamKind = "tool_use_stop"
	StreamOther         StreamKind = "other"
)

// ResultStatus is the terminal status carried by a Result event.
type ResultStatus string

const (
	ResultSuccess     ResultStatus = "success"
	ResultError       ResultStatus = "error"
	ResultInterrupted ResultStatus = "interrupted"
)

// Metrics is whatever usage accounting the agent's Result event exposes.
type Metrics struct {
	CostUSD      float64 `json:"cost_usd,omitempty"`
	InputTokens  int64   `json:"input_tokens,omitempty"`
	OutputTokens int64   `json:"output_tokens,omitempty"`
	Turns        int     `json:"turns,omitempty"`
}

// Event is the tagged union produced by Decode. Exactly one of the typed
// fields is populated, selected by Kind.
type Event struct {
	Kind Kind

	Init    *InitEvent
	Stream  *StreamEvent
	Result  *ResultEvent
	Unknown *UnknownEvent
}

type InitEvent struct {
	SessionID string
	Timestamp time.Time
}

type StreamEvent struct {
	StreamKind   StreamKind
	Text         string // StreamTextDelta
	ToolUseID    string // StreamToolUseStart / StreamToolUseStop
	ToolName     string // StreamToolUseStart
	ToolInput    map[string]any
	Raw          json.RawMessage // StreamOther
}

type ResultEvent struct {
	Status  ResultStatus
	Text    string
	Metrics *Metrics
}

type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}
