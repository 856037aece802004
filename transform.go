package agentcore

import (
	"regexp"
	"strings"
)

// defaultToolCallIDPattern and defaultToolCallIDMaxLen are used when a
// target Model's CompatHints leave ToolCallIDPattern/ToolCallIDMaxLen unset.
var defaultToolCallIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const defaultToolCallIDMaxLen = 64

// NormalizeToolCallIDFn rewrites a tool-call id for a target model. The
// default implementation (DefaultNormalizeToolCallID) is deterministic,
// idempotent, and stable: the same (id, model) always produces the same
// output, and normalizing an already-normalized id returns it unchanged.
type NormalizeToolCallIDFn func(id string, target Model) string

// DefaultNormalizeToolCallID returns id unchanged when it matches the
// target's tool-call-id pattern (or [a-zA-Z0-9_-]+ if the target declares
// none) and length bound (or 64 if unset). Otherwise it keeps only the runes
// in [a-zA-Z0-9_-], truncates to the length bound, and falls back to a fixed
// placeholder if nothing survives; the result is not re-checked against a
// target-declared pattern.
func DefaultNormalizeToolCallID(id string, target Model) string {
	pattern := defaultToolCallIDPattern
	if target.Compat.ToolCallIDPattern != "" {
		if compiled, err := regexp.Compile(target.Compat.ToolCallIDPattern); err == nil {
			pattern = compiled
		}
	}
	maxLen := defaultToolCallIDMaxLen
	if target.Compat.ToolCallIDMaxLen > 0 {
		maxLen = target.Compat.ToolCallIDMaxLen
	}

	if len(id) <= maxLen && pattern.MatchString(id) {
		return id
	}

	var sb strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			sb.WriteRune(r)
		}
	}
	sanitized := sb.String()
	if len(sanitized) > maxLen {
		sanitized = sanitized[:maxLen]
	}
	if sanitized == "" {
		sanitized = "tc_unknown"
	}
	return sanitized
}

// TransformMessages is the Message Transformer (component D): it makes
// conversation history portable across providers by applying, for a given
// target Model, the minimal edits that make the history acceptable and
// semantically equivalent. The transformer is pure: messages is not
// mutated, and the result is a freshly allocated slice.
//
// normalizeID may be nil, in which case DefaultNormalizeToolCallID is used.
func TransformMessages(messages []Message, target Model, normalizeID NormalizeToolCallIDFn) []Message {
	if len(messages) == 0 {
		return nil
	}
	if normalizeID == nil {
		normalizeID = DefaultNormalizeToolCallID
	}

	idMap := make(map[string]string)
	transformed := make([]Message, 0, len(messages))

	// Pass 1: per-message content transformation (thinking portability,
	// tool-call id normalization, thought-signature stripping), dropping
	// errored/aborted assistant messages up front.
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			transformed = append(transformed, msg)

		case RoleTool:
			if newID, ok := idMap[mustToolCallID(msg)]; ok {
				transformed = append(transformed, withToolCallID(msg, newID))
			} else {
				transformed = append(transformed, msg)
			}

		case RoleAssistant:
			if msg.StopReason == StopReasonError || msg.StopReason == StopReasonAborted {
				continue
			}
			transformed = append(transformed, transformAssistantContent(msg, target, normalizeID, idMap))

		default:
			transformed = append(transformed, msg)
		}
	}

	// Pass 2: orphaned tool-call repair. A pending set of tool calls is
	// carried forward until the next assistant message or user message
	// boundary; any call left unanswered at that boundary gets a
	// synthesized error tool result.
	result := make([]Message, 0, len(transformed))
	var pending []ToolCall
	answered := map[string]bool{}

	flushPending := func() {
		for _, tc := range pending {
			if !answered[tc.ID] {
				result = append(result, ToolResultMsg(tc.ID, []byte(`"No result provided"`), true))
			}
		}
		pending = nil
		answered = map[string]bool{}
	}

	for _, msg := range transformed {
		switch msg.Role {
		case RoleAssistant:
			flushPending()
			if calls := msg.ToolCalls(); len(calls) > 0 {
				pending = calls
			}
			result = append(result, msg)

		case RoleTool:
			if id, ok := msg.ToolCallID(); ok {
				answered[id] = true
			}
			result = append(result, msg)

		case RoleUser:
			flushPending()
			result = append(result, msg)

		default:
			result = append(result, msg)
		}
	}
	flushPending()

	return result
}

// transformAssistantContent applies thinking-portability and tool-call
// normalization rules to one assistant message's content blocks.
func transformAssistantContent(msg Message, target Model, normalizeID NormalizeToolCallIDFn, idMap map[string]string) Message {
	sameOrigin := target.SameOrigin(msg.Provider, msg.Api, msg.Model)

	newContent := make([]ContentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case ContentThinking:
			trimmed := strings.TrimSpace(block.Thinking)
			if trimmed == "" {
				continue // always drop empty-after-trim thinking blocks
			}
			switch {
			case sameOrigin:
				newContent = append(newContent, block)
			case target.Compat.RequiresThinkingAsText:
				newContent = append(newContent, TextBlock(block.Thinking))
			default:
				// Different provider, no explicit text requirement: still
				// materialize as text since a foreign signature (if any)
				// cannot be validated by the target.
				newContent = append(newContent, TextBlock(block.Thinking))
			}

		case ContentText:
			newContent = append(newContent, block)

		case ContentToolCall:
			if block.ToolCall == nil {
				continue
			}
			tc := *block.ToolCall
			if !sameOrigin {
				tc.ThoughtSignature = ""
				newID := normalizeID(tc.ID, target)
				if newID != tc.ID {
					idMap[tc.ID] = newID
					tc.ID = newID
				}
			}
			newContent = append(newContent, ToolCallBlock(tc))

		default:
			newContent = append(newContent, block)
		}
	}

	msg.Content = newContent
	return msg
}

func mustToolCallID(msg Message) string {
	id, _ := msg.ToolCallID()
	return id
}

func withToolCallID(msg Message, newID string) Message {
	meta := make(map[string]any, len(msg.Metadata))
	for k, v := range msg.Metadata {
		meta[k] = v
	}
	meta["tool_call_id"] = newID
	msg.Metadata = meta
	return msg
}

// DefaultConvertToLLM filters AgentMessages to LLM-compatible Messages,
// projecting to the provider-visible subset: user, assistant, and
// tool-result messages only (system prompts travel separately via
// AgentContext.SystemPrompt / Context.SystemPrompt). Custom AgentMessage
// types are dropped.
func DefaultConvertToLLM(msgs []AgentMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		msg, ok := m.(Message)
		if !ok {
			continue
		}
		if msg.Role == RoleUser || msg.Role == RoleAssistant || msg.Role == RoleTool {
			out = append(out, msg)
		}
	}
	return out
}
