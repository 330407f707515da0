// Package answer splits an operator's free-form response into a decision
// token and an optional explanatory reason.
package answer

import "strings"

// Answer is the result of parsing an operator's response string.
type Answer struct {
	Decision string
	Reason   string
	HasReason bool
}

// Parse splits s on the first colon. If s contains no colon, Decision is
// the trimmed whole string and HasReason is false. Otherwise both sides of
// the first colon are trimmed independently; the reason side may contain
// further colons, which are preserved verbatim.
func Parse(s string) Answer {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return Answer{Decision: strings.TrimSpace(s)}
	}
	return Answer{
		Decision:  strings.TrimSpace(s[:idx]),
		Reason:    strings.TrimSpace(s[idx+1:]),
		HasReason: true,
	}
}
