package approval

import "github.com/agent-command/agentd/internal/answer"

// Behavior mirrors the agent's own permission-decision vocabulary.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
)

// Response is the translated decision delivered back to the agent's
// approval side-channel (callback bridge body or, for the
// COMMAND/PATCH_APPROVAL family, a structured approve/deny payload).
type Response struct {
	Behavior     Behavior
	Message      string
	UpdatedInput map[string]any

	// Approved/Reason are populated instead of Behavior for
	// COMMAND_APPROVAL / PATCH_APPROVAL, whose wire shape differs from
	// the callback-bridge {behavior, message, updatedInput} shape.
	Approved     bool
	Reason       string
	IsApproveDeny bool
}

// Translate computes the response to deliver for a resolved question.
// originalInput is the agent's raw tool input, retained from the
// PendingQuestion for QUESTION and PLAN_APPROVAL translation. answers is
// the operator's answer list from respond(); only answers[0] is consulted
// except for QUESTION, which uses every answer verbatim.
func Translate(kind Kind, originalInput map[string]any, answers []string) Response {
	var first answer.Answer
	if len(answers) > 0 {
		first = answer.Parse(answers[0])
	}

	switch kind {
	case KindToolApproval:
		if first.Decision == "allow" {
			return Response{Behavior: BehaviorAllow}
		}
		return Response{Behavior: BehaviorDeny, Message: first.Reason}

	case KindPlanApproval:
		if first.Decision == "approve" {
			return Response{Behavior: BehaviorAllow, UpdatedInput: originalInput}
		}
		return Response{Behavior: BehaviorDeny, Message: first.Reason}

	case KindQuestion:
		updated := map[string]any{}
		for k, v := range originalInput {
			updated[k] = v
		}
		answersOut := make([]any, len(answers))
		for i, a := range answers {
			answersOut[i] = a
		}
		updated["answers"] = answersOut
		return Response{Behavior: BehaviorAllow, UpdatedInput: updated}

	case KindCommandApproval, KindPatchApproval:
		approved := first.Decision == "approve" || first.Decision == "allow" || first.Decision == "yes"
		return Response{IsApproveDeny: true, Approved: approved, Reason: first.Reason}

	default:
		return Response{Behavior: BehaviorDeny, Message: "unrecognized question kind"}
	}
}

// DenyOnTimeout builds the Response delivered when a question's timeout
// elapses without an operator answer.
func DenyOnTimeout(kind Kind) Response {
	switch kind {
	case KindCommandApproval, KindPatchApproval:
		return Response{IsApproveDeny: true, Approved: false, Reason: "request timed out"}
	default:
		return Response{Behavior: BehaviorDeny, Message: "request timed out"}
	}
}
