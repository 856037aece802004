// Package observer provides reference Agent.Subscribe listeners for
// human-readable and structured logging. Neither is required for the core
// loop to function; both are pure consumers of the agentcore.Event stream.
package observer

import (
	"io"
	"log"

	"github.com/riverrun/agentcore"
)

// Logger writes one line per lifecycle event in a human-readable format.
// Attach it via agent.Subscribe(observer.NewLogger(os.Stderr).Handle).
type Logger struct {
	logger *log.Logger
}

// NewLogger creates a Logger writing to out. A nil out discards output.
func NewLogger(out io.Writer) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{logger: log.New(out, "agent ", log.LstdFlags|log.Lmicroseconds)}
}

// Handle is an agentcore.Event listener suitable for Agent.Subscribe.
func (l *Logger) Handle(ev agentcore.Event) {
	switch ev.Type {
	case agentcore.EventAgentStart:
		l.logger.Printf("agent start")

	case agentcore.EventTurnStart:
		l.logger.Printf("turn start")

	case agentcore.EventTurnEnd:
		l.logger.Printf("turn end tool_results=%d", len(ev.ToolResults))

	case agentcore.EventMessageEnd:
		if msg, ok := ev.Message.(agentcore.Message); ok {
			l.logger.Printf("message end role=%s stop_reason=%s tool_calls=%d",
				msg.Role, msg.StopReason, len(msg.ToolCalls()))
		}

	case agentcore.EventToolExecStart:
		l.logger.Printf("tool start name=%s id=%s", ev.Tool, ev.ToolID)

	case agentcore.EventToolExecEnd:
		if ev.IsError {
			l.logger.Printf("tool end name=%s id=%s error", ev.Tool, ev.ToolID)
		} else {
			l.logger.Printf("tool end name=%s id=%s result_bytes=%d", ev.Tool, ev.ToolID, len(ev.Result))
		}

	case agentcore.EventRetry:
		if ev.RetryInfo != nil {
			l.logger.Printf("retry attempt=%d/%d delay=%s err=%v",
				ev.RetryInfo.Attempt, ev.RetryInfo.MaxRetries, ev.RetryInfo.Delay, ev.RetryInfo.Err)
		}

	case agentcore.EventError:
		l.logger.Printf("error %v", ev.Err)

	case agentcore.EventAgentEnd:
		if ev.Err != nil {
			l.logger.Printf("agent end err=%v new_messages=%d", ev.Err, len(ev.NewMessages))
		} else {
			l.logger.Printf("agent end new_messages=%d", len(ev.NewMessages))
		}
	}
}
