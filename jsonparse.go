package agentcore

import (
	"encoding/json"
	"strings"
)

// ParseStreamingJSON is the tolerant streaming JSON parser (component I).
// Tool-call arguments arrive fragment-by-fragment as a running string; this
// returns the best-effort parsed object so far, usable for UI preview and
// optimistic consumption, or an empty object when nothing can be recovered.
//
// Algorithm:
//  1. Attempt a strict parse. On success, return it.
//  2. Otherwise scan the buffer tracking {}/[] depth and string state
//     (respecting backslash escapes), append balancing closers, and retry.
//  3. On failure, return an empty object.
//
// ParseStreamingJSON never panics and never returns a nil map: callers can
// always range over or marshal the result.
func ParseStreamingJSON(partial string) map[string]any {
	if strings.TrimSpace(partial) == "" {
		return map[string]any{}
	}

	if m, ok := strictParseObject(partial); ok {
		return m
	}

	balanced := balanceJSON(partial)
	if m, ok := strictParseObject(balanced); ok {
		return m
	}

	return map[string]any{}
}

func strictParseObject(s string) (map[string]any, bool) {
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	if v == nil {
		v = map[string]any{}
	}
	return v, true
}

// balanceJSON scans s tracking bracket/brace depth and string state
// (honoring backslash escapes) and appends the closers needed to balance
// any structure left open, plus a closing quote if s ends mid-string.
func balanceJSON(s string) string {
	var (
		open       []rune // unclosed '[' and '{' in nesting order
		inString   bool
		escapeNext bool
	)

	for _, r := range s {
		if escapeNext {
			escapeNext = false
			continue
		}
		if r == '\\' {
			escapeNext = true
			continue
		}
		if r == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch r {
		case '[', '{':
			open = append(open, r)
		case ']', '}':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(s)
	if inString {
		sb.WriteByte('"')
	}
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '[' {
			sb.WriteByte(']')
		} else {
			sb.WriteByte('}')
		}
	}
	return sb.String()
}
