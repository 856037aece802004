package agentcore

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosedWithoutResult is returned by Result/ResultContext when a
// stream was closed via End(nil) without ever observing a completing event
// and without the caller supplying a default result. See the design note on
// End(result=nil) semantics: the terminal future fails rather than hanging
// or silently returning a zero value.
var ErrStreamClosedWithoutResult = errors.New("agentcore: stream closed without a terminal result")

// EventStream is a generic, cancellable, push/pull asynchronous sequence
// with a terminal result value (component B). It connects producers
// (providers, the agent loop) to consumers (UI, callers awaiting a final
// message) without either side needing to know the other's shape.
//
// Construction takes two pure functions: isComplete identifies the event
// that terminates the stream, and extractResult projects that event to the
// terminal value. Push enqueues events in order; the first event for which
// isComplete returns true closes the stream to further pushes and resolves
// the terminal future. End closes the stream without such an event.
//
// The producer side never blocks: the internal queue is unbounded, which is
// safe because a stream's lifetime is bounded by one LLM turn or one agent
// run. Single-consumer iteration is sufficient; nothing here prevents
// multiple readers of Events, but ordering across concurrent readers is not
// guaranteed.
type EventStream[E any, R any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   []E
	closing bool

	resolved bool
	result   R
	err      error

	ch   chan E
	done chan struct{}

	isComplete    func(E) bool
	extractResult func(E) R

	pumpStarted bool
}

// NewEventStream constructs a stream with the given completion predicate and
// result extractor, and starts its internal delivery pump.
func NewEventStream[E any, R any](isComplete func(E) bool, extractResult func(E) R) *EventStream[E, R] {
	s := &EventStream[E, R]{
		ch:            make(chan E),
		done:          make(chan struct{}),
		isComplete:    isComplete,
		extractResult: extractResult,
	}
	s.cond = sync.NewCond(&s.mu)
	s.startPump()
	return s
}

func (s *EventStream[E, R]) startPump() {
	s.mu.Lock()
	if s.pumpStarted {
		s.mu.Unlock()
		return
	}
	s.pumpStarted = true
	s.mu.Unlock()

	go func() {
		for {
			s.mu.Lock()
			for len(s.queue) == 0 && !s.closing {
				s.cond.Wait()
			}
			if len(s.queue) == 0 && s.closing {
				s.mu.Unlock()
				close(s.ch)
				close(s.done)
				return
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.ch <- ev
		}
	}()
}

// Push enqueues an event. If isComplete(event) is true, the stream becomes
// closed to further pushes and the terminal future resolves with
// extractResult(event). Pushes arriving after closure are silently dropped.
func (s *EventStream[E, R]) Push(ev E) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	if s.isComplete(ev) {
		if !s.resolved {
			s.resolved = true
			s.result = s.extractResult(ev)
		}
		s.closing = true
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// End closes the stream without a completing event. If result is non-nil
// and no prior event has already resolved the terminal future, it becomes
// the resolved value. Otherwise, if nothing has resolved the future, Result
// will report ErrStreamClosedWithoutResult. Calling End after the stream is
// already closing is a no-op.
func (s *EventStream[E, R]) End(result *R) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	if !s.resolved {
		if result != nil {
			s.resolved = true
			s.result = *result
		} else {
			s.err = ErrStreamClosedWithoutResult
		}
	}
	s.closing = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Events returns the channel consumers range over to observe events in push
// order. The channel closes once the stream is closing and its queue has
// fully drained.
func (s *EventStream[E, R]) Events() <-chan E {
	return s.ch
}

// Done returns a channel closed once the stream has fully drained and the
// terminal future is resolved.
func (s *EventStream[E, R]) Done() <-chan struct{} {
	return s.done
}

// Result blocks until the stream is fully drained and returns the terminal
// result (or ErrStreamClosedWithoutResult / the error passed to Fail, if
// any).
func (s *EventStream[E, R]) Result() (R, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// ResultContext is Result but also returns ctx.Err() if ctx is cancelled
// before the stream drains. The stream itself is unaffected; a caller that
// abandons ResultContext does not strand the producer, since Push never
// blocks on a consumer being present.
func (s *EventStream[E, R]) ResultContext(ctx context.Context) (R, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, s.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Fail marks the terminal future as failed with err, then closes the stream.
// Used by a cancelled producer (upstream abort) that has no natural
// completing event to push.
func (s *EventStream[E, R]) Fail(err error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.closing = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// ---------------------------------------------------------------------------
// Convenience constructors for this package's two stream instantiations.
// ---------------------------------------------------------------------------

// NewAssistantMessageStream builds the EventStream instantiation used by the
// Provider Transport Core: events are StreamEvent, the terminal result is
// the finalized Message.
func NewAssistantMessageStream() *EventStream[StreamEvent, Message] {
	return NewEventStream(StreamEvent.IsComplete, func(e StreamEvent) Message { return e.Message })
}

// NewAgentRunStream builds the EventStream instantiation used by a full
// agent run: events are Event, the terminal result is the new messages
// accumulated during the run.
func NewAgentRunStream() *EventStream[Event, []AgentMessage] {
	return NewEventStream(Event.IsComplete, Event.ExtractMessages)
}

// Collect drains an agent-run event channel (e.g. from AgentLoop) and
// returns the final messages plus any error observed on an error event.
// Kept as a plain-channel convenience alongside the generic EventStream for
// callers that already have a raw <-chan Event (e.g. from AgentLoop).
func Collect(events <-chan Event) ([]AgentMessage, error) {
	var (
		result []AgentMessage
		err    error
	)
	for ev := range events {
		if ev.Type == EventAgentEnd {
			result = ev.NewMessages
		}
		if ev.Type == EventError && ev.Err != nil {
			err = ev.Err
		}
	}
	return result, err
}
