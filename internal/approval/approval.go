// Package approval maps an agent's approval request to one of a closed
// set of question kinds and translates the operator's eventual answer
// back into the response shape the agent expects.
//
// Grounded on providers.ClaudeProvider.MapHookToStatus's hook-name
// dispatch table and the teacher's known-key extraction idiom in
// main.go's extractUsageFields/findNumber/findTime (a short list of
// well-known field names tried in order against an arbitrary payload).
package approval

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of question kinds a Request classifies into.
type Kind string

const (
	KindToolApproval    Kind = "TOOL_APPROVAL"
	KindPlanApproval    Kind = "PLAN_APPROVAL"
	KindQuestion        Kind = "QUESTION"
	KindCommandApproval Kind = "COMMAND_APPROVAL"
	KindPatchApproval   Kind = "PATCH_APPROVAL"
)

// Request is what the agent's approval callback supplies.
type Request struct {
	ToolName string
	ToolInput map[string]any
	// PromptText is set instead of ToolName/ToolInput for agent families
	// that surface approvals as free-form stderr prompts rather than
	// structured tool calls (spawnpolicy.ApprovalInlineIO).
	PromptText string
}

// SubQuestion is one entry of a QUESTION request's input payload.
type SubQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Question is the operator-facing synthesis of a Request.
type Question struct {
	Kind      Kind
	Prompt    string
	Options   []string
	SubQuestions []SubQuestion // populated only for KindQuestion
	OriginalInput map[string]any
}

// planToolNames and questionToolNames are the closed vocabulary this
// classifier recognizes; anything else falls through to TOOL_APPROVAL
// (or COMMAND/PATCH when classifying from free-form prompt text).
var planToolNames = map[string]bool{
	"exitplanmode":   true,
	"exit_plan_mode": true,
}

var questionToolNames = map[string]bool{
	"askuserquestion":  true,
	"ask_user_question": true,
}

// summaryKeys is the small known-key list the one-line TOOL_APPROVAL
// prompt is built from, in priority order.
var summaryKeys = []string{"command", "file_path", "path", "pattern", "query", "url", "content"}

const maxContentChars = 100

// Classify maps req to a Question. ToolName classification takes
// precedence; PromptText-only requests (inline-IO agent families) are
// classified by keyword into COMMAND_APPROVAL / PATCH_APPROVAL.
func Classify(req Request) Question {
	if req.ToolName != "" {
		return classifyByToolName(req.ToolName, req.ToolInput)
	}
	return classifyByPrompt(req.PromptText)
}

func classifyByToolName(toolName string, input map[string]any) Question {
	lower := strings.ToLower(strings.TrimSpace(toolName))

	switch {
	case planToolNames[lower]:
		return Question{
			Kind:          KindPlanApproval,
			Prompt:        planPrompt(input),
			Options:       []string{"approve", "reject"},
			OriginalInput: input,
		}
	case questionToolNames[lower]:
		subs := extractSubQuestions(input)
		return Question{
			Kind:          KindQuestion,
			SubQuestions:  subs,
			OriginalInput: input,
		}
	default:
		return Question{
			Kind:          KindToolApproval,
			Prompt:        toolApprovalPrompt(toolName, input),
			Options:       []string{"allow", "deny"},
			OriginalInput: input,
		}
	}
}

var patchKeywords = []string{"patch", "apply", "modify", "delete", "create", "write"}

func classifyByPrompt(prompt string) Question {
	lower := strings.ToLower(prompt)
	kind := KindCommandApproval
	for _, kw := range patchKeywords {
		if strings.Contains(lower, kw) {
			kind = KindPatchApproval
			break
		}
	}
	return Question{
		Kind:    kind,
		Prompt:  prompt,
		Options: []string{"approve", "deny"},
	}
}

func planPrompt(input map[string]any) string {
	if plan, ok := input["plan"].(string); ok && plan != "" {
		return plan
	}
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func toolApprovalPrompt(toolName string, input map[string]any) string {
	summary := summarizeInput(input)
	if summary == "" {
		return toolName
	}
	return fmt.Sprintf("%s: %s", toolName, summary)
}

func summarizeInput(input map[string]any) string {
	for _, key := range summaryKeys {
		v, ok := input[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if key == "content" && len(s) > maxContentChars {
			return s[:maxContentChars] + "..."
		}
		return s
	}
	return ""
}

func extractSubQuestions(input map[string]any) []SubQuestion {
	raw, ok := input["questions"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	subs := make([]SubQuestion, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		q := SubQuestion{}
		if s, ok := m["question"].(string); ok {
			q.Question = s
		}
		if opts, ok := m["options"].([]any); ok {
			for _, o := range opts {
				if s, ok := o.(string); ok {
					q.Options = append(q.Options, s)
				}
			}
		}
		subs = append(subs, q)
	}
	return subs
}
