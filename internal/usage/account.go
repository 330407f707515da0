// Package usage implements the supplemental account-level usage poll
// (SPEC_FULL's DOMAIN STACK addition): periodically shelling out to a
// provider-supplied status command and parsing whatever it reports into
// an AccountUsage, which the supervisor keeps per agent family and shows
// in status()'s AccountUsage field.
//
// Adapted from the teacher's Agent.reportProviderUsage /
// extractUsageFields / flattenMap / findNumber / findTime in
// cmd/agentd/main.go. The per-provider free-text screen-scrapers
// (parseClaudeUsageText, parseCodexStatusText, parseGeminiStatusText) are
// not carried forward — see DESIGN.md for why — since the spec's agents
// already report cost and token counts natively in their Result events
// (internal/events.Metrics); this package only needs the generic
// JSON-object path for account-wide figures (e.g. weekly quota) that
// never appear in a single turn's Result event.
package usage

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// AccountUsage is whatever a provider's status command reported, folded
// into a small set of well-known fields plus the raw payload for
// observability.
type AccountUsage struct {
	Provider        string
	ReportedAt      time.Time
	RawText         string
	RemainingTokens *int64
	WeeklyRemaining *int64
	ResetAt         *time.Time
}

// PollCommand runs command (via /bin/sh -lc) and parses its output.
// Non-zero exit or empty output is not an error worth failing the poll
// loop over; the caller logs and tries again next tick, matching the
// teacher's reportProviderUsage behavior.
func PollCommand(ctx context.Context, provider, command string) (*AccountUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-lc", command)
	out, err := cmd.CombinedOutput()
	raw := strings.TrimSpace(string(out))
	if err != nil && raw == "" {
		return nil, err
	}

	u := &AccountUsage{Provider: provider, ReportedAt: time.Now().UTC(), RawText: raw}
	if raw == "" {
		return u, nil
	}

	var decoded map[string]any
	if json.Unmarshal([]byte(raw), &decoded) == nil {
		flattened := map[string]any{}
		flattenMap("", decoded, flattened)
		u.RemainingTokens = findNumber(flattened, []string{"remaining_tokens", "tokens_remaining", "remaining"})
		u.WeeklyRemaining = findNumber(flattened, []string{"weekly_remaining_tokens", "weekly_remaining"})
		u.ResetAt = findTime(flattened, []string{"reset_at", "resets_at", "weekly_reset_at"})
	}

	return u, nil
}

func flattenMap(prefix string, value map[string]any, out map[string]any) {
	for key, val := range value {
		lowerKey := strings.ToLower(key)
		fullKey := lowerKey
		if prefix != "" {
			fullKey = prefix + "." + lowerKey
		}
		out[fullKey] = val
		if nested, ok := val.(map[string]any); ok {
			flattenMap(fullKey, nested, out)
		}
	}
}

func findNumber(flattened map[string]any, keys []string) *int64 {
	for _, key := range keys {
		for candidate, val := range flattened {
			if candidate == key || strings.HasSuffix(candidate, "."+key) {
				if n := parseNumber(val); n != nil {
					return n
				}
			}
		}
	}
	return nil
}

func findTime(flattened map[string]any, keys []string) *time.Time {
	for _, key := range keys {
		for candidate, val := range flattened {
			if candidate == key || strings.HasSuffix(candidate, "."+key) {
				if s, ok := val.(string); ok {
					if ts, err := time.Parse(time.RFC3339, s); err == nil {
						ts = ts.UTC()
						return &ts
					}
				}
			}
		}
	}
	return nil
}

func parseNumber(value any) *int64 {
	switch v := value.(type) {
	case float64:
		n := int64(v)
		return &n
	case string:
		clean := strings.ReplaceAll(v, ",", "")
		if n, err := strconv.ParseInt(clean, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}
