package observer

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/riverrun/agentcore"
)

// StructuredLogger emits one JSON-lines record per lifecycle event via
// zerolog, suitable for shipping to a log aggregator.
type StructuredLogger struct {
	log zerolog.Logger
}

// NewStructuredLogger creates a StructuredLogger writing to out.
func NewStructuredLogger(out io.Writer) *StructuredLogger {
	if out == nil {
		out = io.Discard
	}
	return &StructuredLogger{log: zerolog.New(out).With().Timestamp().Logger()}
}

// Handle is an agentcore.Event listener suitable for Agent.Subscribe.
func (s *StructuredLogger) Handle(ev agentcore.Event) {
	switch ev.Type {
	case agentcore.EventAgentStart:
		s.log.Info().Str("event", "agent_start").Send()

	case agentcore.EventTurnEnd:
		s.log.Info().Str("event", "turn_end").Int("tool_results", len(ev.ToolResults)).Send()

	case agentcore.EventMessageEnd:
		if msg, ok := ev.Message.(agentcore.Message); ok {
			s.log.Info().
				Str("event", "message_end").
				Str("role", string(msg.Role)).
				Str("stop_reason", string(msg.StopReason)).
				Int("tool_calls", len(msg.ToolCalls())).
				Send()
		}

	case agentcore.EventToolExecStart:
		s.log.Info().Str("event", "tool_start").Str("tool", ev.Tool).Str("id", ev.ToolID).Send()

	case agentcore.EventToolExecEnd:
		e := s.log.Info().Str("event", "tool_end").Str("tool", ev.Tool).Str("id", ev.ToolID).Bool("is_error", ev.IsError)
		e.Int("result_bytes", len(ev.Result)).Send()

	case agentcore.EventRetry:
		if ri := ev.RetryInfo; ri != nil {
			s.log.Warn().
				Str("event", "retry").
				Int("attempt", ri.Attempt).
				Int("max_retries", ri.MaxRetries).
				Dur("delay", ri.Delay).
				AnErr("cause", ri.Err).
				Send()
		}

	case agentcore.EventError:
		s.log.Error().Str("event", "error").AnErr("error", ev.Err).Send()

	case agentcore.EventAgentEnd:
		e := s.log.Info().Str("event", "agent_end").Int("new_messages", len(ev.NewMessages))
		if ev.Err != nil {
			e.AnErr("error", ev.Err)
		}
		e.Send()
	}
}
