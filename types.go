package agentcore

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// toolProgressKey is the context key for tool progress callbacks.
type toolProgressKey struct{}

// ToolProgressFunc is a callback for reporting tool execution progress.
// Tools call ReportToolProgress to emit partial results during long operations.
type ToolProgressFunc func(partialResult json.RawMessage)

// WithToolProgress injects a progress callback into the context.
func WithToolProgress(ctx context.Context, fn ToolProgressFunc) context.Context {
	return context.WithValue(ctx, toolProgressKey{}, fn)
}

// ReportToolProgress reports partial progress during tool execution.
// Silently ignored if no callback is registered in the context.
func ReportToolProgress(ctx context.Context, partial json.RawMessage) {
	if fn, ok := ctx.Value(toolProgressKey{}).(ToolProgressFunc); ok {
		fn(partial)
	}
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ---------------------------------------------------------------------------
// Content Blocks
// ---------------------------------------------------------------------------

// ContentType identifies the kind of content in a ContentBlock. The taxonomy
// is closed: text, thinking, image, tool call. There is no extension point.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentThinking ContentType = "thinking"
	ContentToolCall ContentType = "toolCall"
	ContentImage    ContentType = "image"
)

// ContentBlock is a tagged union for message content. Exactly one payload
// field is populated, matching Type. Consumers must switch on Type rather
// than type-assert; there is no interface hierarchy to extend.
type ContentBlock struct {
	Type ContentType `json:"type"`

	Text          string `json:"text,omitempty"`
	TextSignature string `json:"text_signature,omitempty"`

	Thinking          string `json:"thinking,omitempty"`
	ThinkingSignature string `json:"thinking_signature,omitempty"`

	ToolCall *ToolCall  `json:"tool_call,omitempty"`
	Image    *ImageData `json:"image,omitempty"`
}

// ImageData holds base64-encoded image content.
type ImageData struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// Block constructors.

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

func TextBlockSigned(text, signature string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text, TextSignature: signature}
}

func ThinkingBlock(thinking string) ContentBlock {
	return ContentBlock{Type: ContentThinking, Thinking: thinking}
}

func ThinkingBlockSigned(thinking, signature string) ContentBlock {
	return ContentBlock{Type: ContentThinking, Thinking: thinking, ThinkingSignature: signature}
}

func ToolCallBlock(tc ToolCall) ContentBlock {
	return ContentBlock{Type: ContentToolCall, ToolCall: &tc}
}

func ImageBlock(data, mimeType string) ContentBlock {
	return ContentBlock{Type: ContentImage, Image: &ImageData{Data: data, MimeType: mimeType}}
}

// ---------------------------------------------------------------------------
// Stop Reason
// ---------------------------------------------------------------------------

// StopReason indicates why the LLM stopped generating for one turn.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "toolUse"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// ---------------------------------------------------------------------------
// Usage & Cost
// ---------------------------------------------------------------------------

// Usage tracks token consumption for a single LLM call.
//
// Field semantics:
//   - Input: prompt tokens sent to the model (includes cached tokens for some providers)
//   - Output: completion tokens generated (includes reasoning tokens if applicable)
//   - CacheRead: tokens served from prompt cache
//   - CacheWrite: tokens written to prompt cache
//   - TotalTokens: provider-reported total, recomputed as Input+Output+CacheRead+CacheWrite if absent
type Usage struct {
	Input       int `json:"input"`
	Output      int `json:"output"`
	CacheRead   int `json:"cache_read"`
	CacheWrite  int `json:"cache_write"`
	TotalTokens int `json:"total_tokens"`

	Cost *Cost `json:"cost,omitempty"`
}

// Cost is the dollar cost of a Usage at a model's per-million-token pricing.
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read"`
	CacheWrite float64 `json:"cache_write"`
	Total      float64 `json:"total"`
}

// Add accumulates another Usage into this one (nil-safe). Cost, if present
// on either operand, is recomputed by the caller via Finalize, not summed
// here, since cost depends on the model's pricing, not the Usage alone.
func (u *Usage) Add(other *Usage) {
	if u == nil || other == nil {
		return
	}
	u.Input += other.Input
	u.Output += other.Output
	u.CacheRead += other.CacheRead
	u.CacheWrite += other.CacheWrite
	u.TotalTokens += other.TotalTokens
}

// Finalize recomputes TotalTokens and Cost from a model's per-million-token
// pricing. Called once when an assistant message's usage is authoritative.
func (u *Usage) Finalize(pricing ModelCost) {
	if u == nil {
		return
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.Input + u.Output + u.CacheRead + u.CacheWrite
	}
	c := &Cost{
		Input:      perMillion(u.Input, pricing.Input),
		Output:     perMillion(u.Output, pricing.Output),
		CacheRead:  perMillion(u.CacheRead, pricing.CacheRead),
		CacheWrite: perMillion(u.CacheWrite, pricing.CacheWrite),
	}
	c.Total = c.Input + c.Output + c.CacheRead + c.CacheWrite
	u.Cost = c
}

func perMillion(tokens int, pricePerMillion float64) float64 {
	return float64(tokens) * pricePerMillion / 1_000_000
}

// ---------------------------------------------------------------------------
// Thinking Level
// ---------------------------------------------------------------------------

// ThinkingLevel configures the reasoning depth for models that support it.
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingXHigh   ThinkingLevel = "xhigh"
)

// DefaultThinkingBudgets is the documented default token budget per level.
// xhigh has no listed default: it is clamped to high on models that do not
// advertise support for it (see ClampThinkingLevel).
var DefaultThinkingBudgets = map[ThinkingLevel]int{
	ThinkingMinimal: 1024,
	ThinkingLow:     2048,
	ThinkingMedium:  8192,
	ThinkingHigh:    16384,
}

// ClampThinkingLevel clamps xhigh down to high unless supportsXHigh is true.
func ClampThinkingLevel(level ThinkingLevel, supportsXHigh bool) ThinkingLevel {
	if level == ThinkingXHigh && !supportsXHigh {
		return ThinkingHigh
	}
	return level
}

// ---------------------------------------------------------------------------
// Cache Retention
// ---------------------------------------------------------------------------

// CacheRetention selects the provider-specific cache-control markers the
// transport attaches to the last user-turn block and, where supported, the
// system prompt.
type CacheRetention string

const (
	CacheRetentionNone  CacheRetention = "none"
	CacheRetentionShort CacheRetention = "short"
	CacheRetentionLong  CacheRetention = "long"
)

// DefaultCacheRetention names the default retention level. Nothing in this
// module substitutes it for an unset CacheRetention.
const DefaultCacheRetention = CacheRetentionShort

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// AgentMessage is the app-layer message abstraction. Message implements
// this interface; callers may define additional types (e.g. status
// notifications) that flow through the context pipeline but are dropped by
// ConvertToLLM before reaching a provider.
type AgentMessage interface {
	GetRole() Role
	GetTimestamp() time.Time
	TextContent() string
	ThinkingContent() string
	HasToolCalls() bool
}

// Message is an LLM-level message with structured content blocks. It is the
// concrete representation of all three message kinds in the data model:
// a UserMessage is Role==RoleUser, an AssistantMessage is Role==RoleAssistant,
// a ToolResultMessage is Role==RoleTool with tool_call_id/is_error carried in
// Metadata. Api/Provider/Model name the origin of an assistant message and
// are set by the transport at message_start.
type Message struct {
	Role         Role           `json:"role"`
	Content      []ContentBlock `json:"content"`
	StopReason   StopReason     `json:"stop_reason,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
	Api          string         `json:"api,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Model        string         `json:"model,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (m Message) GetRole() Role           { return m.Role }
func (m Message) GetTimestamp() time.Time { return m.Timestamp }

// TextContent returns the concatenated text from all text blocks.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if b.Type == ContentText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ThinkingContent returns the concatenated thinking text.
func (m Message) ThinkingContent() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if b.Type == ContentThinking {
			sb.WriteString(b.Thinking)
		}
	}
	return sb.String()
}

// ToolCalls returns all tool call blocks, in content order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Type == ContentToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// HasToolCalls reports whether any tool call blocks exist.
func (m Message) HasToolCalls() bool {
	for _, b := range m.Content {
		if b.Type == ContentToolCall {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the message has no meaningful content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// ToolCallID returns the tool_call_id carried in Metadata for a tool-role
// message, and whether it was present.
func (m Message) ToolCallID() (string, bool) {
	id, ok := m.Metadata["tool_call_id"].(string)
	return id, ok
}

// IsErrorResult reports whether a tool-role message's is_error flag is set.
func (m Message) IsErrorResult() bool {
	v, _ := m.Metadata["is_error"].(bool)
	return v
}

// ---------------------------------------------------------------------------
// Message Serialization Helpers
// ---------------------------------------------------------------------------

// CollectMessages extracts concrete Messages from an AgentMessage slice,
// dropping custom types. Use this to serialize conversation history.
func CollectMessages(msgs []AgentMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if msg, ok := m.(Message); ok {
			out = append(out, msg)
		}
	}
	return out
}

// ToAgentMessages converts a Message slice to an AgentMessage slice.
// Use this to restore conversation history from deserialized Messages.
func ToAgentMessages(msgs []Message) []AgentMessage {
	out := make([]AgentMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	return out
}

// ---------------------------------------------------------------------------
// Message Constructors
// ---------------------------------------------------------------------------

// UserMsg creates a user message from plain text.
func UserMsg(text string) Message {
	return Message{
		Role:      RoleUser,
		Content:   []ContentBlock{TextBlock(text)},
		Timestamp: time.Now(),
	}
}

// UserMsgWithImages creates a user message from text plus inline images.
func UserMsgWithImages(text string, images []ImageData) Message {
	content := make([]ContentBlock, 0, 1+len(images))
	if text != "" {
		content = append(content, TextBlock(text))
	}
	for _, img := range images {
		content = append(content, ImageBlock(img.Data, img.MimeType))
	}
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// SystemMsg creates a system message.
func SystemMsg(text string) Message {
	return Message{
		Role:      RoleSystem,
		Content:   []ContentBlock{TextBlock(text)},
		Timestamp: time.Now(),
	}
}

// ToolResultMsg creates a tool result message.
func ToolResultMsg(toolCallID string, content json.RawMessage, isError bool) Message {
	return Message{
		Role:    RoleTool,
		Content: []ContentBlock{TextBlock(string(content))},
		Metadata: map[string]any{
			"tool_call_id": toolCallID,
			"is_error":     isError,
		},
		Timestamp: time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Tool Calls & Results
// ---------------------------------------------------------------------------

// ToolCall represents a tool invocation request from the LLM.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`

	// ThoughtSignature is an opaque provider-private token some providers
	// attach to a tool call; it is stripped when the call is replayed to a
	// different provider (see the Message Transformer).
	ThoughtSignature string `json:"thought_signature,omitempty"`
}

// ToolResult represents a tool execution outcome.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	Details    any             `json:"details,omitempty"`
}

// ---------------------------------------------------------------------------
// Tool Interface
// ---------------------------------------------------------------------------

// Tool defines the minimal tool interface. Timeout control goes through
// context.Context. Tools can report execution progress via
// ReportToolProgress(ctx, partial).
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// ToolLabeler is an optional interface for tools to provide a human-readable label.
type ToolLabeler interface {
	Label() string
}

// PermissionFunc is called before each tool execution. Return nil to allow
// execution, or a non-nil error to deny. The error message is sent back to
// the LLM as a tool error result.
type PermissionFunc func(ctx context.Context, call ToolCall) error

// FuncTool wraps a function as a Tool (convenience helper).
type FuncTool struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

func NewFuncTool(name, description string, schema map[string]any, fn func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)) *FuncTool {
	return &FuncTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *FuncTool) Name() string           { return t.name }
func (t *FuncTool) Description() string    { return t.description }
func (t *FuncTool) Schema() map[string]any { return t.schema }
func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return t.fn(ctx, args)
}

// ---------------------------------------------------------------------------
// Model Descriptor
// ---------------------------------------------------------------------------

// ModelCost is per-million-token pricing in USD.
type ModelCost struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// CompatHints bundles per-model transport toggles that let one transport
// implementation serve many providers instead of branching on provider name.
type CompatHints struct {
	// RequiresThinkingAsText is true for providers that reject native
	// reasoning blocks on resend and expect them materialized as text.
	RequiresThinkingAsText bool

	// ThinkingFieldName names the separate text channel a provider streams
	// reasoning on (e.g. "reasoning_content"), used as the thinking
	// signature when the provider has no native signature mechanism.
	ThinkingFieldName string

	// ToolCallIDPattern, if non-empty, is a regular expression the
	// provider's tool-call ids must match; ids violating it are rewritten.
	ToolCallIDPattern string

	// ToolCallIDMaxLen bounds generated/rewritten tool-call id length; 0 means unbounded.
	ToolCallIDMaxLen int

	// SupportsCacheControl is true for providers honoring CacheRetention markers.
	SupportsCacheControl bool

	// SupportsXHighThinking is true for the narrow set of models advertising xhigh reasoning.
	SupportsXHighThinking bool
}

// Model is the provider-neutral descriptor passed to a ChatModel / StreamFn.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	API      string `json:"api"`

	BaseURL string            `json:"base_url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	Reasoning bool     `json:"reasoning"`
	Input     []string `json:"input"` // subset of {"text","image"}

	ContextWindow int `json:"context_window"`
	MaxTokens     int `json:"max_tokens"`

	Cost ModelCost `json:"-"`

	Compat CompatHints `json:"-"`
}

// SupportsInput reports whether the model accepts a given input kind.
func (m Model) SupportsInput(kind string) bool {
	for _, k := range m.Input {
		if k == kind {
			return true
		}
	}
	return false
}

// SameOrigin reports whether two models share (provider, api, model id),
// the comparison the Message Transformer uses to decide whether a thinking
// block may be round-tripped verbatim.
func (m Model) SameOrigin(provider, api, id string) bool {
	return m.Provider == provider && m.API == api && m.ID == id
}

// ---------------------------------------------------------------------------
// Context & Agent Context
// ---------------------------------------------------------------------------

// Context is the model-facing request shape: a system prompt, the message
// history, and schema-only tool descriptors (no executors).
type Context struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSpec
}

// AgentContext mirrors Context but holds tool descriptors with executors
// instead of schema-only tools, for use inside the Agent Loop.
type AgentContext struct {
	SystemPrompt string
	Messages     []AgentMessage
	Tools        []Tool
}

// StreamFn is an injectable LLM call function. When nil, the loop uses
// Model.Generate / Model.GenerateStream directly via the configured ChatModel.
type StreamFn func(ctx context.Context, req *LLMRequest) (*LLMResponse, error)

// LLMRequest is the request passed to StreamFn.
type LLMRequest struct {
	Messages []Message
	Tools    []ToolSpec
}

// LLMResponse is the response from StreamFn.
type LLMResponse struct {
	Message Message
}

// ToolSpec describes a tool for the LLM (name + description + JSON schema).
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// LoopConfig configures the agent loop.
type LoopConfig struct {
	Model           ChatModel
	StreamFn        StreamFn // nil = use Model directly
	MaxTurns        int      // safety limit, default 10
	MaxRetries      int           // LLM call retry limit for retryable errors, 0 = no retry (NewAgent sets 3)
	MaxRetryDelay   time.Duration // cap on exponential backoff / Retry-After, default 30s
	MaxToolErrors   int           // consecutive tool failure threshold per tool name, 0 = unlimited
	ThinkingLevel   ThinkingLevel
	ThinkingBudgets map[ThinkingLevel]int

	CacheRetention CacheRetention

	// Two-stage pipeline: TransformContext -> ConvertToLLM, matching STREAM_ASSISTANT.
	TransformContext func(ctx context.Context, msgs []AgentMessage) ([]AgentMessage, error)
	ConvertToLLM     func(msgs []AgentMessage) []Message

	// CheckPermission is called before each tool execution.
	CheckPermission PermissionFunc

	// GetApiKey resolves the API key before each LLM call, keyed by provider name.
	GetApiKey func(provider string) (string, error)

	// SessionID enables provider-level session caching.
	SessionID string

	// Steering: polled after each tool execution and between turns.
	GetSteeringMessages func() []AgentMessage
	SteeringMode        QueueMode

	// FollowUp: polled when the agent would otherwise stop.
	GetFollowUpMessages func() []AgentMessage
	FollowUpMode        QueueMode
}

// ---------------------------------------------------------------------------
// Context Usage Estimation
// ---------------------------------------------------------------------------

// ContextEstimateFn estimates the current context token consumption from
// messages. Returns total tokens, tokens derived from LLM-reported Usage,
// and estimated trailing tokens for messages since the last Usage.
type ContextEstimateFn func(msgs []AgentMessage) (tokens, usageTokens, trailingTokens int)

// ContextUsage represents the current context window occupancy estimate.
type ContextUsage struct {
	Tokens         int     `json:"tokens"`
	ContextWindow  int     `json:"context_window"`
	Percent        float64 `json:"percent"`
	UsageTokens    int     `json:"usage_tokens"`
	TrailingTokens int     `json:"trailing_tokens"`
}

// ---------------------------------------------------------------------------
// Call Options
// ---------------------------------------------------------------------------

// CallOption configures per-call LLM parameters.
type CallOption func(*CallConfig)

// CallConfig holds per-call configuration resolved from CallOptions. It is
// the concrete form of the external SimpleStreamOptions surface.
type CallConfig struct {
	ThinkingLevel  ThinkingLevel
	ThinkingBudget int
	APIKey         string
	SessionID      string
	CacheRetention CacheRetention
	Temperature    *float64
	MaxTokens      int
	Headers        map[string]string
	MaxRetryDelay  time.Duration
}

// ResolveCallConfig applies options and returns the resolved config.
func ResolveCallConfig(opts []CallOption) CallConfig {
	var cfg CallConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithThinking(level ThinkingLevel) CallOption {
	return func(c *CallConfig) { c.ThinkingLevel = level }
}

func WithThinkingBudget(tokens int) CallOption {
	return func(c *CallConfig) { c.ThinkingBudget = tokens }
}

func WithAPIKey(key string) CallOption {
	return func(c *CallConfig) { c.APIKey = key }
}

func WithCallSessionID(id string) CallOption {
	return func(c *CallConfig) { c.SessionID = id }
}

func WithCacheRetention(r CacheRetention) CallOption {
	return func(c *CallConfig) { c.CacheRetention = r }
}

func WithTemperature(t float64) CallOption {
	return func(c *CallConfig) { c.Temperature = &t }
}

func WithMaxTokens(n int) CallOption {
	return func(c *CallConfig) { c.MaxTokens = n }
}

func WithHeaders(h map[string]string) CallOption {
	return func(c *CallConfig) { c.Headers = h }
}

func WithMaxRetryDelay(d time.Duration) CallOption {
	return func(c *CallConfig) { c.MaxRetryDelay = d }
}

// ---------------------------------------------------------------------------
// ChatModel Interface
// ---------------------------------------------------------------------------

// ChatModel is the LLM provider interface (Provider Transport Core, §4.3).
type ChatModel interface {
	Generate(ctx context.Context, messages []Message, tools []ToolSpec, opts ...CallOption) (*LLMResponse, error)
	GenerateStream(ctx context.Context, messages []Message, tools []ToolSpec, opts ...CallOption) (<-chan StreamEvent, error)
	SupportsTools() bool
}

// ProviderNamer is an optional interface for ChatModel implementations to
// expose their provider name. Used by the agent loop to pass provider
// context to GetApiKey callbacks.
type ProviderNamer interface {
	ProviderName() string
}

// ---------------------------------------------------------------------------
// Stream Events (fine-grained, component C)
// ---------------------------------------------------------------------------

// StreamEventType identifies transport streaming event types.
type StreamEventType string

const (
	StreamEventStart StreamEventType = "start"

	StreamEventTextStart StreamEventType = "text_start"
	StreamEventTextDelta StreamEventType = "text_delta"
	StreamEventTextEnd   StreamEventType = "text_end"

	StreamEventThinkingStart StreamEventType = "thinking_start"
	StreamEventThinkingDelta StreamEventType = "thinking_delta"
	StreamEventThinkingEnd   StreamEventType = "thinking_end"

	StreamEventToolCallStart StreamEventType = "toolcall_start"
	StreamEventToolCallDelta StreamEventType = "toolcall_delta"
	StreamEventToolCallEnd   StreamEventType = "toolcall_end"

	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a streaming event from the transport. Message is always an
// immutable snapshot of the partial (or final, for done/error) assistant
// message: consumers must never observe the same Message value mutated in
// place across two events (§9 design note on snapshot semantics).
type StreamEvent struct {
	Type         StreamEventType
	ContentIndex int
	Delta        string
	Message      Message
	StopReason   StopReason
	Err          error
}

// IsComplete is the is_complete predicate for EventStream[StreamEvent, Message].
func (e StreamEvent) IsComplete() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// ---------------------------------------------------------------------------
// Queue Mode
// ---------------------------------------------------------------------------

// QueueMode controls how steering/follow-up queues are drained.
type QueueMode string

const (
	QueueModeAll        QueueMode = "all"
	QueueModeOneAtATime QueueMode = "one-at-a-time"
)

// ---------------------------------------------------------------------------
// Agent Events (component F/G wire shape)
// ---------------------------------------------------------------------------

// EventType identifies agent lifecycle event types.
type EventType string

const (
	EventAgentStart EventType = "agent_start"
	EventAgentEnd   EventType = "agent_end"
	EventTurnStart  EventType = "turn_start"
	EventTurnEnd    EventType = "turn_end"

	EventMessageStart  EventType = "message_start"
	EventMessageUpdate EventType = "message_update"
	EventMessageEnd    EventType = "message_end"

	EventToolExecStart  EventType = "tool_exec_start"
	EventToolExecUpdate EventType = "tool_exec_update"
	EventToolExecEnd    EventType = "tool_exec_end"

	EventRetry EventType = "retry"
	EventError EventType = "error"
)

// Event is a lifecycle event emitted by the agent loop: the single output
// channel for all run information, matching the AgentEvent taxonomy.
type Event struct {
	Type EventType

	Message AgentMessage
	Delta   string

	ToolID    string
	Tool      string
	ToolLabel string
	Args      json.RawMessage
	Result    json.RawMessage
	IsError   bool

	ToolResults []ToolResult

	Err error

	NewMessages []AgentMessage

	RetryInfo *RetryInfo
}

// RetryInfo carries retry context for EventRetry events.
type RetryInfo struct {
	Attempt    int
	MaxRetries int
	Delay      time.Duration
	Err        error
}

// IsComplete is the is_complete predicate for EventStream[Event, []AgentMessage].
func (e Event) IsComplete() bool {
	return e.Type == EventAgentEnd
}

// ExtractMessages is the extract_result extractor for a full agent run.
func (e Event) ExtractMessages() []AgentMessage {
	return e.NewMessages
}
