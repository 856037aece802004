package observer

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/riverrun/agentcore"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode JSON line %q: %v", buf.String(), err)
	}
	return m
}

func TestStructuredLoggerAgentStart(t *testing.T) {
	var buf bytes.Buffer
	NewStructuredLogger(&buf).Handle(agentcore.Event{Type: agentcore.EventAgentStart})
	m := decodeLine(t, &buf)
	if m["event"] != "agent_start" {
		t.Errorf("event field = %v, want agent_start", m["event"])
	}
}

func TestStructuredLoggerMessageEnd(t *testing.T) {
	var buf bytes.Buffer
	msg := agentcore.Message{
		Role:       agentcore.RoleAssistant,
		StopReason: agentcore.StopReasonStop,
		Content:    []agentcore.ContentBlock{agentcore.TextBlock("hi")},
	}
	NewStructuredLogger(&buf).Handle(agentcore.Event{Type: agentcore.EventMessageEnd, Message: msg})
	m := decodeLine(t, &buf)
	if m["role"] != "assistant" || m["stop_reason"] != "stop" {
		t.Errorf("unexpected fields: %+v", m)
	}
}

func TestStructuredLoggerToolExecEnd(t *testing.T) {
	var buf bytes.Buffer
	NewStructuredLogger(&buf).Handle(agentcore.Event{
		Type: agentcore.EventToolExecEnd, Tool: "search", ToolID: "call_1",
		IsError: true, Result: []byte(`"err"`),
	})
	m := decodeLine(t, &buf)
	if m["tool"] != "search" || m["is_error"] != true {
		t.Errorf("unexpected fields: %+v", m)
	}
}

func TestStructuredLoggerRetry(t *testing.T) {
	var buf bytes.Buffer
	NewStructuredLogger(&buf).Handle(agentcore.Event{Type: agentcore.EventRetry, RetryInfo: &agentcore.RetryInfo{
		Attempt: 2, MaxRetries: 3, Delay: 500 * time.Millisecond, Err: errors.New("timeout"),
	}})
	m := decodeLine(t, &buf)
	if m["event"] != "retry" || m["attempt"] != float64(2) {
		t.Errorf("unexpected fields: %+v", m)
	}
	if m["cause"] != "timeout" {
		t.Errorf("expected the retry cause to be logged, got %+v", m)
	}
}

func TestStructuredLoggerAgentEndWithError(t *testing.T) {
	var buf bytes.Buffer
	NewStructuredLogger(&buf).Handle(agentcore.Event{
		Type: agentcore.EventAgentEnd, Err: errors.New("boom"),
		NewMessages: []agentcore.AgentMessage{agentcore.UserMsg("hi")},
	})
	m := decodeLine(t, &buf)
	if m["new_messages"] != float64(1) || m["error"] != "boom" {
		t.Errorf("unexpected fields: %+v", m)
	}
}

func TestStructuredLoggerNilWriterDiscardsOutput(t *testing.T) {
	NewStructuredLogger(nil).Handle(agentcore.Event{Type: agentcore.EventAgentStart})
}

func TestStructuredLoggerUnknownEventTypeProducesNoOutput(t *testing.T) {
	var buf bytes.Buffer
	NewStructuredLogger(&buf).Handle(agentcore.Event{Type: agentcore.EventType("unrecognized")})
	if buf.Len() != 0 {
		t.Errorf("expected no output for an unhandled event type, got %q", buf.String())
	}
}
