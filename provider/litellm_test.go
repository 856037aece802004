package provider

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/voocel/litellm"

	"github.com/riverrun/agentcore"
)

func TestConvertMessagesBasicRoles(t *testing.T) {
	msgs := []agentcore.Message{
		agentcore.UserMsg("hello"),
		{Role: agentcore.RoleAssistant, Content: []agentcore.ContentBlock{agentcore.TextBlock("hi there")}},
	}
	out := convertMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2", len(out))
	}
	if out[0].Role != "user" || out[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", out[0])
	}
	if out[1].Role != "assistant" || out[1].Content != "hi there" {
		t.Errorf("unexpected second message: %+v", out[1])
	}
}

func TestConvertMessagesToolCallsAndResults(t *testing.T) {
	args := json.RawMessage(`{"expression":"1+1"}`)
	msgs := []agentcore.Message{
		{
			Role: agentcore.RoleAssistant,
			Content: []agentcore.ContentBlock{
				agentcore.ToolCallBlock(agentcore.ToolCall{ID: "call_1", Name: "calculator", Args: args}),
			},
		},
		agentcore.ToolResultMsg("call_1", json.RawMessage(`"2"`), false),
	}
	out := convertMessages(msgs)

	if len(out[0].ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(out[0].ToolCalls))
	}
	if out[0].ToolCalls[0].Function.Name != "calculator" {
		t.Errorf("unexpected tool call name: %s", out[0].ToolCalls[0].Function.Name)
	}
	if out[1].ToolCallID != "call_1" {
		t.Errorf("expected tool call ID 'call_1', got %s", out[1].ToolCallID)
	}
}

func TestConvertResponseToolCalls(t *testing.T) {
	l := &LiteLLMAdapter{model: LookupModel("gpt-4.1"), gen: DefaultGenerationConfig}

	resp := &litellm.Response{
		Content: "",
		ToolCalls: []litellm.ToolCall{
			{ID: "call_1", Function: litellm.FunctionCall{Name: "calculator", Arguments: `{"value":2}`}},
		},
		FinishReason: "tool_calls",
		Usage:        litellm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	msg := l.convertResponse(resp)
	calls := msg.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call in response, got %d", len(calls))
	}
	if calls[0].Name != "calculator" {
		t.Errorf("unexpected response tool call name: %s", calls[0].Name)
	}
	if msg.StopReason != agentcore.StopReasonToolUse {
		t.Errorf("StopReason = %s, want tool_use", msg.StopReason)
	}
	if msg.Usage == nil || msg.Usage.TotalTokens == 0 {
		t.Errorf("expected token usage to be populated")
	}
}

func TestConvertResponseText(t *testing.T) {
	l := &LiteLLMAdapter{model: LookupModel("claude-4-sonnet"), gen: DefaultGenerationConfig}
	resp := &litellm.Response{
		Content:      "the answer is 2",
		FinishReason: "end_turn",
		Usage:        litellm.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10},
	}
	msg := l.convertResponse(resp)
	if msg.TextContent() != "the answer is 2" {
		t.Errorf("TextContent = %q", msg.TextContent())
	}
	if msg.StopReason != agentcore.StopReasonStop {
		t.Errorf("StopReason = %s, want stop", msg.StopReason)
	}
}

func TestConvertUsageNilWhenEmpty(t *testing.T) {
	if u := convertUsage(nil); u != nil {
		t.Errorf("expected nil usage for a nil input, got %+v", u)
	}
	if u := convertUsage(&litellm.Usage{}); u != nil {
		t.Errorf("expected nil usage when TotalTokens is zero, got %+v", u)
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]agentcore.StopReason{
		"stop":       agentcore.StopReasonStop,
		"end_turn":   agentcore.StopReasonStop,
		"length":     agentcore.StopReasonLength,
		"max_tokens": agentcore.StopReasonLength,
		"tool_calls": agentcore.StopReasonToolUse,
		"tool_use":   agentcore.StopReasonToolUse,
		"":           agentcore.StopReasonStop,
		"weird":      agentcore.StopReason("weird"),
	}
	for reason, want := range cases {
		if got := mapStopReason(reason); got != want {
			t.Errorf("mapStopReason(%q) = %s, want %s", reason, got, want)
		}
	}
}

func TestApplyToolCallDeltaAccumulatesArguments(t *testing.T) {
	builders := make(map[int]*toolCallBuilder)
	applyToolCallDelta(builders, &litellm.ToolCallDelta{Index: 0, ID: "call_1", FunctionName: "lookup"})
	applyToolCallDelta(builders, &litellm.ToolCallDelta{Index: 0, ArgumentsDelta: `{"q":`})
	applyToolCallDelta(builders, &litellm.ToolCallDelta{Index: 0, ArgumentsDelta: `"x"}`})

	calls := buildToolCalls(builders)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "lookup" {
		t.Errorf("unexpected call: %+v", calls[0])
	}
	if string(calls[0].Args) != `{"q":"x"}` {
		t.Errorf("accumulated args = %s, want %s", calls[0].Args, `{"q":"x"}`)
	}
}

func TestApplyToolCallDeltaNilSafe(t *testing.T) {
	applyToolCallDelta(nil, &litellm.ToolCallDelta{Index: 0})
	if calls := buildToolCalls(nil); calls != nil {
		t.Errorf("expected nil calls for a nil builder map, got %+v", calls)
	}
}

func TestBuildToolCallsOrdersByIndex(t *testing.T) {
	builders := map[int]*toolCallBuilder{
		2: {id: "c2", functionName: "second"},
		0: {id: "c0", functionName: "first"},
	}
	calls := buildToolCalls(builders)
	if len(calls) != 2 || calls[0].Name != "first" || calls[1].Name != "second" {
		t.Errorf("expected calls ordered by builder index, got %+v", calls)
	}
}

func TestLastBlockIndex(t *testing.T) {
	blocks := []agentcore.ContentBlock{
		agentcore.TextBlock("a"),
		agentcore.ThinkingBlock("b"),
		agentcore.TextBlock("c"),
	}
	if idx := lastBlockIndex(blocks, agentcore.ContentText); idx != 2 {
		t.Errorf("lastBlockIndex(text) = %d, want 2", idx)
	}
	if idx := lastBlockIndex(blocks, agentcore.ContentThinking); idx != 1 {
		t.Errorf("lastBlockIndex(thinking) = %d, want 1", idx)
	}
	if idx := lastBlockIndex(blocks, agentcore.ContentToolCall); idx != -1 {
		t.Errorf("lastBlockIndex(tool_call) = %d, want -1 (absent)", idx)
	}
}

// TestLiteLLMAdapterStreamAPI exercises a real streaming call against OpenAI
// and only runs when credentials are available, mirroring the gated live
// test the adapter's conversion logic was ported from.
func TestLiteLLMAdapterStreamAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping streaming API test")
	}
	adapter, err := NewOpenAIAdapter("gpt-4.1", apiKey, os.Getenv("OPENAI_BASE_URL"))
	if err != nil {
		t.Fatalf("NewOpenAIAdapter: %v", err)
	}
	ch, err := adapter.GenerateStream(context.Background(), []agentcore.Message{agentcore.UserMsg("Count from 1 to 3.")}, nil)
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	var sawDone bool
	for ev := range ch {
		if ev.Type == agentcore.StreamEventDone {
			sawDone = true
		}
		if ev.Type == agentcore.StreamEventError {
			t.Fatalf("stream error: %v", ev.Err)
		}
	}
	if !sawDone {
		t.Errorf("expected a StreamEventDone before the channel closed")
	}
}
