package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// scriptedModel is a ChatModel test double whose GenerateStream responses
// are driven by a caller-supplied function, so tests can script multi-call
// scenarios (retries, tool-call turns) deterministically.
type scriptedModel struct {
	provider string
	calls    int
	next     func(call int, messages []Message) (Message, error)
}

func (m *scriptedModel) ProviderName() string { return m.provider }
func (m *scriptedModel) SupportsTools() bool  { return true }

func (m *scriptedModel) Generate(ctx context.Context, messages []Message, tools []ToolSpec, opts ...CallOption) (*LLMResponse, error) {
	m.calls++
	msg, err := m.next(m.calls, messages)
	if err != nil {
		return nil, err
	}
	return &LLMResponse{Message: msg}, nil
}

func (m *scriptedModel) GenerateStream(ctx context.Context, messages []Message, tools []ToolSpec, opts ...CallOption) (<-chan StreamEvent, error) {
	m.calls++
	msg, err := m.next(m.calls, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamEvent, 2)
	ch <- StreamEvent{Type: StreamEventDone, Message: msg, StopReason: msg.StopReason}
	close(ch)
	return ch, nil
}

func textReply(text string) Message {
	return Message{Role: RoleAssistant, StopReason: StopReasonStop, Content: []ContentBlock{TextBlock(text)}}
}

func TestAgentLoopSimpleTurnCompletes(t *testing.T) {
	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		return textReply("hi there"), nil
	}}
	cfg := LoopConfig{Model: model, MaxTurns: 5}

	ch := AgentLoop(context.Background(), []AgentMessage{UserMsg("hello")}, AgentContext{}, cfg)
	msgs, err := Collect(ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d new messages, want 2 (user echo + assistant reply), got %+v", len(msgs), msgs)
	}
	if msgs[1].TextContent() != "hi there" {
		t.Errorf("assistant reply = %q", msgs[1].TextContent())
	}
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes input" }
func (echoTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"text": map[string]any{"type": "string"}}}
}
func (echoTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var v struct {
		Text string `json:"text"`
	}
	json.Unmarshal(args, &v)
	return json.Marshal(v.Text)
}

func TestAgentLoopExecutesToolCallThenFinishes(t *testing.T) {
	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		if call == 1 {
			return Message{
				Role: RoleAssistant, StopReason: StopReasonToolUse,
				Content: []ContentBlock{ToolCallBlock(ToolCall{ID: "call_1", Name: "echo", Args: json.RawMessage(`{"text":"hi"}`)})},
			}, nil
		}
		return textReply("done"), nil
	}}
	cfg := LoopConfig{Model: model, MaxTurns: 5}

	ch := AgentLoop(context.Background(), []AgentMessage{UserMsg("echo hi")}, AgentContext{Tools: []Tool{echoTool{}}}, cfg)

	var toolStarted, toolEnded bool
	var msgs []AgentMessage
	for ev := range ch {
		switch ev.Type {
		case EventToolExecStart:
			toolStarted = true
		case EventToolExecEnd:
			toolEnded = true
			if ev.IsError {
				t.Errorf("tool execution unexpectedly errored: %s", ev.Result)
			}
		case EventAgentEnd:
			msgs = ev.NewMessages
		}
	}
	if !toolStarted || !toolEnded {
		t.Fatalf("expected tool exec start/end events, got started=%v ended=%v", toolStarted, toolEnded)
	}
	// user, assistant tool-call, tool result, final assistant
	if len(msgs) != 4 {
		t.Fatalf("got %d new messages, want 4: %+v", len(msgs), msgs)
	}
	if msgs[3].TextContent() != "done" {
		t.Errorf("final assistant message = %q", msgs[3].TextContent())
	}
}

func TestAgentLoopToolNotFoundBecomesErrorResult(t *testing.T) {
	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		if call == 1 {
			return Message{
				Role: RoleAssistant, StopReason: StopReasonToolUse,
				Content: []ContentBlock{ToolCallBlock(ToolCall{ID: "call_1", Name: "missing", Args: json.RawMessage(`{}`)})},
			}, nil
		}
		return textReply("done"), nil
	}}
	cfg := LoopConfig{Model: model, MaxTurns: 5}
	ch := AgentLoop(context.Background(), []AgentMessage{UserMsg("x")}, AgentContext{}, cfg)
	msgs, err := Collect(ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, m := range msgs {
		if msg, ok := m.(Message); ok && msg.Role == RoleTool && msg.IsErrorResult() {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a tool-error result message for the missing tool, got %+v", msgs)
	}
}

func TestAgentLoopValidationFailureBecomesToolError(t *testing.T) {
	tool := &schemaTool{
		name: "strict_tool",
		schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"n": map[string]any{"type": "integer"}},
			"required":   []any{"n"},
		},
	}
	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		if call == 1 {
			return Message{
				Role: RoleAssistant, StopReason: StopReasonToolUse,
				Content: []ContentBlock{ToolCallBlock(ToolCall{ID: "call_1", Name: "strict_tool", Args: json.RawMessage(`{"n":"not a number"}`)})},
			}, nil
		}
		return textReply("done"), nil
	}}
	cfg := LoopConfig{Model: model, MaxTurns: 5}
	ch := AgentLoop(context.Background(), []AgentMessage{UserMsg("x")}, AgentContext{Tools: []Tool{tool}}, cfg)

	var sawValidationError bool
	for ev := range ch {
		if ev.Type == EventToolExecEnd && ev.IsError {
			sawValidationError = true
		}
	}
	if !sawValidationError {
		t.Errorf("expected the invalid tool args to surface as a tool execution error")
	}
}

func TestAgentLoopRetriesRetryableTransportError(t *testing.T) {
	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		if call < 3 {
			return Message{}, fmt.Errorf("rate limited: %w", ErrRetryableTransport)
		}
		return textReply("recovered"), nil
	}}
	// Force non-streaming fallback isn't needed: GenerateStream itself returns
	// the error via next(), so callLLMStream sees an error from GenerateStream
	// and falls through to Generate — both paths are scripted identically.
	cfg := LoopConfig{Model: model, MaxTurns: 5, MaxRetries: 3, MaxRetryDelay: time.Millisecond}

	ch := AgentLoop(context.Background(), []AgentMessage{UserMsg("hi")}, AgentContext{}, cfg)
	var sawRetry bool
	var msgs []AgentMessage
	for ev := range ch {
		if ev.Type == EventRetry {
			sawRetry = true
		}
		if ev.Type == EventAgentEnd {
			msgs = ev.NewMessages
		}
	}
	if !sawRetry {
		t.Errorf("expected at least one EventRetry before success")
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].TextContent() != "recovered" {
		t.Errorf("expected the loop to eventually recover, got %+v", msgs)
	}
}

func TestAgentLoopGivesUpAfterMaxRetries(t *testing.T) {
	permanentErr := fmt.Errorf("still failing: %w", ErrRetryableTransport)
	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		return Message{}, permanentErr
	}}
	cfg := LoopConfig{Model: model, MaxTurns: 5, MaxRetries: 2, MaxRetryDelay: time.Millisecond}

	ch := AgentLoop(context.Background(), []AgentMessage{UserMsg("hi")}, AgentContext{}, cfg)
	_, err := Collect(ch)
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
}

func TestAgentLoopRespectsMaxTurns(t *testing.T) {
	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		// Always returns a tool call so the loop never naturally terminates.
		return Message{
			Role: RoleAssistant, StopReason: StopReasonToolUse,
			Content: []ContentBlock{ToolCallBlock(ToolCall{ID: fmt.Sprintf("call_%d", call), Name: "echo", Args: json.RawMessage(`{"text":"x"}`)})},
		}, nil
	}}
	cfg := LoopConfig{Model: model, MaxTurns: 2}
	ch := AgentLoop(context.Background(), []AgentMessage{UserMsg("x")}, AgentContext{Tools: []Tool{echoTool{}}}, cfg)
	_, err := Collect(ch)
	if err == nil {
		t.Fatalf("expected an error once max turns is reached")
	}
}

func TestAgentLoopContinueRejectsEmptyHistory(t *testing.T) {
	cfg := LoopConfig{Model: &scriptedModel{provider: "test"}}
	ch := AgentLoopContinue(context.Background(), AgentContext{}, cfg)
	_, err := Collect(ch)
	if !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestAgentLoopAbortStopsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the loop ever runs: the first ctx.Err() check must fire

	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		panic("model should never be called once the context is already cancelled")
	}}
	cfg := LoopConfig{Model: model, MaxTurns: 5}
	ch := AgentLoop(ctx, []AgentMessage{UserMsg("hi")}, AgentContext{}, cfg)
	_, err := Collect(ch)
	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Errorf("expected *AbortedError, got %v", err)
	}
}

func TestAgentLoopCircuitBreaksAfterConsecutiveToolErrors(t *testing.T) {
	model := &scriptedModel{provider: "test", next: func(call int, _ []Message) (Message, error) {
		if call <= 3 {
			return Message{
				Role: RoleAssistant, StopReason: StopReasonToolUse,
				Content: []ContentBlock{ToolCallBlock(ToolCall{ID: fmt.Sprintf("c%d", call), Name: "missing", Args: json.RawMessage(`{}`)})},
			}, nil
		}
		return textReply("done"), nil
	}}
	cfg := LoopConfig{Model: model, MaxTurns: 10, MaxToolErrors: 2}
	ch := AgentLoop(context.Background(), []AgentMessage{UserMsg("x")}, AgentContext{}, cfg)

	var disabledSeen bool
	for ev := range ch {
		if ev.Type == EventToolExecEnd && ev.IsError {
			var result string
			json.Unmarshal(ev.Result, &result)
			if result != "" && contains(result, "disabled after") {
				disabledSeen = true
			}
		}
	}
	if !disabledSeen {
		t.Errorf("expected the circuit breaker to disable the tool after repeated failures")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
