package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestProxyModelGenerateStreamReconstructsMessage(t *testing.T) {
	streamFn := func(ctx context.Context, req *LLMRequest) (<-chan ProxyEvent, error) {
		ch := make(chan ProxyEvent, 8)
		go func() {
			defer close(ch)
			ch <- ProxyEvent{Type: ProxyEventTextDelta, Delta: "hel"}
			ch <- ProxyEvent{Type: ProxyEventTextDelta, Delta: "lo"}
			ch <- ProxyEvent{Type: ProxyEventDone, StopReason: StopReasonStop, Usage: &Usage{TotalTokens: 12}}
		}()
		return ch, nil
	}

	model := NewProxyModel(streamFn)
	resp, err := model.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.TextContent() != "hello" {
		t.Errorf("reconstructed text = %q, want %q", resp.Message.TextContent(), "hello")
	}
	if resp.Message.StopReason != StopReasonStop {
		t.Errorf("StopReason = %s, want stop", resp.Message.StopReason)
	}
	if resp.Message.Usage == nil || resp.Message.Usage.TotalTokens != 12 {
		t.Errorf("Usage not propagated: %+v", resp.Message.Usage)
	}
}

func TestProxyModelGenerateStreamToolCallDeltas(t *testing.T) {
	streamFn := func(ctx context.Context, req *LLMRequest) (<-chan ProxyEvent, error) {
		ch := make(chan ProxyEvent, 8)
		go func() {
			defer close(ch)
			ch <- ProxyEvent{Type: ProxyEventToolCallStart, ToolCallID: "call_1", ToolName: "lookup"}
			ch <- ProxyEvent{Type: ProxyEventToolCallDelta, Delta: `{"q":`}
			ch <- ProxyEvent{Type: ProxyEventToolCallDelta, Delta: `"x"}`}
			ch <- ProxyEvent{Type: ProxyEventDone, StopReason: StopReasonToolUse}
		}()
		return ch, nil
	}

	model := NewProxyModel(streamFn)
	resp, err := model.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := resp.Message.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "lookup" {
		t.Fatalf("expected one reconstructed tool call, got %+v", calls)
	}
	if string(calls[0].Args) != `{"q":"x"}` {
		t.Errorf("reconstructed tool args = %s, want %s", calls[0].Args, `{"q":"x"}`)
	}
}

func TestProxyModelGenerateStreamError(t *testing.T) {
	wantErr := errors.New("upstream failed")
	streamFn := func(ctx context.Context, req *LLMRequest) (<-chan ProxyEvent, error) {
		ch := make(chan ProxyEvent, 1)
		ch <- ProxyEvent{Type: ProxyEventError, Err: wantErr}
		close(ch)
		return ch, nil
	}
	model := NewProxyModel(streamFn)
	_, err := model.Generate(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("expected propagated proxy error, got %v", err)
	}
}

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	original := Event{
		Type:    EventToolExecEnd,
		ToolID:  "call_1",
		Tool:    "lookup",
		Result:  json.RawMessage(`"42"`),
		IsError: false,
		RetryInfo: &RetryInfo{
			Attempt: 1, MaxRetries: 3,
		},
	}
	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if decoded.Type != original.Type || decoded.ToolID != original.ToolID || decoded.Tool != original.Tool {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
	if string(decoded.Result) != string(original.Result) {
		t.Errorf("Result mismatch: got %s, want %s", decoded.Result, original.Result)
	}
	if decoded.RetryInfo == nil || decoded.RetryInfo.Attempt != 1 {
		t.Errorf("RetryInfo not round-tripped: %+v", decoded.RetryInfo)
	}
}

func TestEncodeDecodeEventNarrowsAgentMessage(t *testing.T) {
	ev := Event{Type: EventMessageEnd, Message: UserMsg("hi")}
	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if decoded.Message == nil || decoded.Message.TextContent() != "hi" {
		t.Errorf("message content lost across the wire: %+v", decoded.Message)
	}
}

func TestEncodeDecodeEventErrorAsString(t *testing.T) {
	ev := Event{Type: EventError, Err: errors.New("boom")}
	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if decoded.Err == nil || decoded.Err.Error() != "boom" {
		t.Errorf("error text not preserved: %v", decoded.Err)
	}
}
