package agentcore

import (
	"encoding/json"
	"testing"
)

var claude = Model{ID: "claude-4-sonnet", Provider: "anthropic", API: "anthropic"}
var gpt = Model{ID: "gpt-5", Provider: "openai", API: "openai",
	Compat: CompatHints{RequiresThinkingAsText: false}}

func TestTransformMessagesSameOriginThinkingPreserved(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}},
		{
			Role: RoleAssistant, Provider: "anthropic", Api: "anthropic", Model: "claude-4-sonnet",
			Content: []ContentBlock{ThinkingBlock("reasoning here"), TextBlock("answer")},
		},
	}
	out := TransformMessages(msgs, claude, nil)
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2", len(out))
	}
	if out[1].ThinkingContent() != "reasoning here" {
		t.Errorf("same-origin thinking block was not preserved: %q", out[1].ThinkingContent())
	}
}

func TestTransformMessagesCrossOriginThinkingMaterialized(t *testing.T) {
	msgs := []Message{
		{
			Role: RoleAssistant, Provider: "anthropic", Api: "anthropic", Model: "claude-4-sonnet",
			Content: []ContentBlock{ThinkingBlock("reasoning here"), TextBlock("answer")},
		},
	}
	out := TransformMessages(msgs, gpt, nil)
	if len(out) != 1 {
		t.Fatalf("got %d messages, want 1", len(out))
	}
	if out[0].ThinkingContent() != "" {
		t.Errorf("cross-origin message still carries a thinking block: %q", out[0].ThinkingContent())
	}
	if out[0].TextContent() != "reasoning hereanswer" {
		t.Errorf("expected thinking materialized as text before the existing text block, got %q", out[0].TextContent())
	}
}

func TestTransformMessagesDropsEmptyThinkingAfterTrim(t *testing.T) {
	msgs := []Message{
		{
			Role: RoleAssistant, Provider: "anthropic", Api: "anthropic", Model: "claude-4-sonnet",
			Content: []ContentBlock{ThinkingBlock("   "), TextBlock("answer")},
		},
	}
	out := TransformMessages(msgs, claude, nil)
	if len(out[0].Content) != 1 || out[0].Content[0].Type != ContentText {
		t.Errorf("whitespace-only thinking block should be dropped entirely, got %+v", out[0].Content)
	}
}

func TestTransformMessagesDropsErroredAndAbortedAssistant(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}},
		{Role: RoleAssistant, StopReason: StopReasonError, Content: []ContentBlock{TextBlock("boom")}},
		{Role: RoleAssistant, StopReason: StopReasonAborted, Content: []ContentBlock{TextBlock("cut off")}},
		{Role: RoleAssistant, StopReason: StopReasonStop, Content: []ContentBlock{TextBlock("ok")}},
	}
	out := TransformMessages(msgs, claude, nil)
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2 (user + successful assistant)", len(out))
	}
	if out[1].TextContent() != "ok" {
		t.Errorf("expected surviving assistant message to be the successful one, got %q", out[1].TextContent())
	}
}

func TestTransformMessagesRepairsOrphanedToolCall(t *testing.T) {
	msgs := []Message{
		{
			Role: RoleAssistant, Provider: "anthropic", Api: "anthropic", Model: "claude-4-sonnet",
			Content: []ContentBlock{ToolCallBlock(ToolCall{ID: "call_1", Name: "lookup"})},
		},
		{Role: RoleUser, Content: []ContentBlock{TextBlock("never answered the tool call")}},
	}
	out := TransformMessages(msgs, claude, nil)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3 (assistant, synthesized tool error, user)", len(out))
	}
	if out[1].Role != RoleTool {
		t.Fatalf("expected synthesized tool-result message at index 1, got role %s", out[1].Role)
	}
	if !out[1].IsErrorResult() {
		t.Errorf("synthesized tool result should be marked is_error")
	}
	if id, ok := out[1].ToolCallID(); !ok || id != "call_1" {
		t.Errorf("synthesized tool result tool_call_id = %q, ok=%v", id, ok)
	}
}

func TestTransformMessagesAnsweredToolCallNotRepaired(t *testing.T) {
	msgs := []Message{
		{
			Role: RoleAssistant, Provider: "anthropic", Api: "anthropic", Model: "claude-4-sonnet",
			Content: []ContentBlock{ToolCallBlock(ToolCall{ID: "call_1", Name: "lookup"})},
		},
		ToolResultMsg("call_1", json.RawMessage(`"42"`), false),
	}
	out := TransformMessages(msgs, claude, nil)
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2 (no synthesized repair)", len(out))
	}
}

func TestTransformMessagesCrossOriginStripsThoughtSignatureAndNormalizesID(t *testing.T) {
	msgs := []Message{
		{
			Role: RoleAssistant, Provider: "anthropic", Api: "anthropic", Model: "claude-4-sonnet",
			Content: []ContentBlock{ToolCallBlock(ToolCall{ID: "toolu_01AbCxyz!!!", Name: "lookup", ThoughtSignature: "secret"})},
		},
		ToolResultMsg("toolu_01AbCxyz!!!", json.RawMessage(`"42"`), false),
	}
	out := TransformMessages(msgs, gpt, nil)
	calls := out[0].ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(calls))
	}
	if calls[0].ThoughtSignature != "" {
		t.Errorf("expected thought signature stripped on cross-origin replay, got %q", calls[0].ThoughtSignature)
	}
	newID := calls[0].ID
	if newID == "toolu_01AbCxyz!!!" {
		t.Errorf("expected invalid-charset id to be rewritten, stayed %q", newID)
	}
	gotID, ok := out[1].ToolCallID()
	if !ok || gotID != newID {
		t.Errorf("tool-result message id not remapped: got %q, want %q", gotID, newID)
	}
}

func TestDefaultNormalizeToolCallIDIdempotent(t *testing.T) {
	id := DefaultNormalizeToolCallID("call_abc123", gpt)
	again := DefaultNormalizeToolCallID(id, gpt)
	if id != again {
		t.Errorf("normalization not idempotent: %q -> %q", id, again)
	}
}

func TestDefaultNormalizeToolCallIDFallback(t *testing.T) {
	got := DefaultNormalizeToolCallID("!!!", gpt)
	if got != "tc_unknown" {
		t.Errorf("expected fallback placeholder for all-invalid id, got %q", got)
	}
}

func TestDefaultConvertToLLMFiltersRoles(t *testing.T) {
	msgs := []AgentMessage{
		UserMsg("hi"),
		SystemMsg("ignored by default convert since it travels separately"),
	}
	out := DefaultConvertToLLM(msgs)
	if len(out) != 1 || out[0].Role != RoleUser {
		t.Fatalf("DefaultConvertToLLM should keep only user/assistant/tool, got %+v", out)
	}
}
