package agentcore

// emit sends an event to the channel (non-blocking if the channel is full;
// drops the event rather than stalling the loop goroutine).
func emit(ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

// emitError sends an error event followed by agent_end, the pattern used
// whenever the loop fails in a way that bypasses the normal turn/tool
// sequence.
func emitError(ch chan<- Event, err error, soFar []AgentMessage) {
	emit(ch, Event{Type: EventError, Err: err})
	emit(ch, Event{Type: EventAgentEnd, Err: err, NewMessages: soFar})
}

// dequeue removes messages from a queue according to the given mode.
// QueueModeAll drains everything; QueueModeOneAtATime takes only the first
// message, leaving the rest queued for the next poll.
func dequeue(queue *[]AgentMessage, mode QueueMode) []AgentMessage {
	if len(*queue) == 0 {
		return nil
	}
	if mode == QueueModeOneAtATime {
		first := (*queue)[0]
		*queue = (*queue)[1:]
		return []AgentMessage{first}
	}
	result := *queue
	*queue = nil
	return result
}
