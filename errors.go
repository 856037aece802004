package agentcore

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the configuration-error kind
// (§7.5): these are raised synchronously from Agent Facade entry points and
// never folded into the event stream.
var (
	ErrNoModel          = errors.New("agentcore: no model configured")
	ErrAlreadyStreaming = errors.New("agentcore: a run is already active")
	ErrEmptyHistory     = errors.New("agentcore: continue requires non-empty history")
	ErrLastIsAssistant  = errors.New("agentcore: continue requires the sanitized history not end on an assistant message")

	// ErrRetryableTransport marks errors the loop's retry-with-backoff logic
	// should retry; a ChatModel implementation wraps a transient failure
	// with this sentinel via errors.Join or fmt.Errorf("%w: ...", ...).
	ErrRetryableTransport = errors.New("agentcore: retryable transport error")
)

// TransportError is error kind 1 (§7): a wire or protocol failure. It is
// carried on the final AssistantMessage.ErrorMessage with StopReason ==
// StopReasonError and never raised to callers of iteration; it is only
// observable via an EventError/StreamEventError event.
type TransportError struct {
	Provider string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(provider, op string, err error) *TransportError {
	return &TransportError{Provider: provider, Op: op, Err: err}
}

// AbortedError is error kind 2 (§7): signalled by Abort(); StopReason ==
// StopReasonAborted, reason "aborted" on the terminal event.
type AbortedError struct {
	Op string
}

func (e *AbortedError) Error() string { return fmt.Sprintf("aborted: %s", e.Op) }

func NewAbortedError(op string) *AbortedError { return &AbortedError{Op: op} }

// ToolExecutionError is error kind 3 (§7): captured per tool call, never
// aborts the turn; it becomes a ToolResultMessage{IsError: true}.
type ToolExecutionError struct {
	ToolName   string
	ToolCallID string
	Err        error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (%s): %v", e.ToolName, e.ToolCallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

func NewToolExecutionError(toolName, toolCallID string, err error) *ToolExecutionError {
	return &ToolExecutionError{ToolName: toolName, ToolCallID: toolCallID, Err: err}
}

// ValidationError is error kind 4 (§7): a tool-argument schema failure,
// treated as a ToolExecutionError with a path-qualified message
// ("property.path: message").
type ValidationError struct {
	Path    string
	Message string
	Args    []byte
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func NewValidationError(path, message string, args []byte) *ValidationError {
	return &ValidationError{Path: path, Message: message, Args: args}
}

// ConfigurationError is error kind 5 (§7): raised synchronously from facade
// entry points (no model, already streaming, continue from an empty or
// assistant-terminal history).
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func NewConfigurationError(op string, err error) *ConfigurationError {
	return &ConfigurationError{Op: op, Err: err}
}

// IsRetryable reports whether err should trigger the loop's retry-with-
// backoff behavior around a transport call.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryableTransport) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te)
}
