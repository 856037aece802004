package provider

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/voocel/litellm"
	"github.com/voocel/litellm/providers"

	"github.com/riverrun/agentcore"
)

// init registers factories for the models in modelTable, so an Agent can be
// pointed at e.g. "claude-4-sonnet" via agentcore.NewRegisteredModel without
// importing this package's constructors directly.
func init() {
	agentcore.RegisterModel("gpt-5", func(apiKey string) (agentcore.ChatModel, error) {
		return NewOpenAIAdapter("gpt-5", apiKey)
	})
	agentcore.RegisterModel("gpt-4.1", func(apiKey string) (agentcore.ChatModel, error) {
		return NewOpenAIAdapter("gpt-4.1", apiKey)
	})
	agentcore.RegisterModel("claude-4-sonnet", func(apiKey string) (agentcore.ChatModel, error) {
		return NewAnthropicAdapter("claude-4-sonnet", apiKey)
	})
	agentcore.RegisterModel("claude-3.7-sonnet", func(apiKey string) (agentcore.ChatModel, error) {
		return NewAnthropicAdapter("claude-3.7-sonnet", apiKey)
	})
	agentcore.RegisterModel("gemini-2.5-pro", func(apiKey string) (agentcore.ChatModel, error) {
		return NewGeminiAdapter("gemini-2.5-pro", apiKey)
	})
	agentcore.RegisterModel("gemini-2.5-flash", func(apiKey string) (agentcore.ChatModel, error) {
		return NewGeminiAdapter("gemini-2.5-flash", apiKey)
	})
}

// LiteLLMAdapter adapts a github.com/voocel/litellm client to
// agentcore.ChatModel. It owns the target agentcore.Model descriptor and
// applies agentcore.TransformMessages against it before every call, which is
// what makes history built against one provider replayable against another
// through the same Agent.
type LiteLLMAdapter struct {
	client *litellm.Client
	model  agentcore.Model
	gen    *GenerationConfig
}

// NewLiteLLMAdapter builds an adapter for a specific model id, resolving its
// static descriptor via LookupModel.
func NewLiteLLMAdapter(modelID string, p providers.Provider, opts ...litellm.ClientOption) (*LiteLLMAdapter, error) {
	client, err := litellm.New(p, opts...)
	if err != nil {
		return nil, agentcore.NewConfigurationError("new litellm adapter", err)
	}
	return &LiteLLMAdapter{
		client: client,
		model:  LookupModel(modelID),
		gen:    DefaultGenerationConfig,
	}, nil
}

// NewOpenAIAdapter builds an adapter targeting an OpenAI-compatible model.
func NewOpenAIAdapter(modelID, apiKey string, baseURL ...string) (*LiteLLMAdapter, error) {
	cfg := providers.ProviderConfig{APIKey: apiKey}
	if len(baseURL) > 0 {
		cfg.BaseURL = baseURL[0]
	}
	return NewLiteLLMAdapter(modelID, providers.NewOpenAI(cfg))
}

// NewAnthropicAdapter builds an adapter targeting an Anthropic model.
func NewAnthropicAdapter(modelID, apiKey string, baseURL ...string) (*LiteLLMAdapter, error) {
	cfg := providers.ProviderConfig{APIKey: apiKey}
	if len(baseURL) > 0 {
		cfg.BaseURL = baseURL[0]
	}
	return NewLiteLLMAdapter(modelID, providers.NewAnthropic(cfg))
}

// NewGeminiAdapter builds an adapter targeting a Gemini model.
func NewGeminiAdapter(modelID, apiKey string, baseURL ...string) (*LiteLLMAdapter, error) {
	cfg := providers.ProviderConfig{APIKey: apiKey}
	if len(baseURL) > 0 {
		cfg.BaseURL = baseURL[0]
	}
	return NewLiteLLMAdapter(modelID, providers.NewGemini(cfg))
}

// ProviderName implements agentcore.ProviderNamer.
func (l *LiteLLMAdapter) ProviderName() string { return l.model.Provider }

// SupportsTools implements agentcore.ChatModel.
func (l *LiteLLMAdapter) SupportsTools() bool { return SupportsToolCalling(l.model.ID) }

// Generate implements agentcore.ChatModel.
func (l *LiteLLMAdapter) Generate(ctx context.Context, messages []agentcore.Message, tools []agentcore.ToolSpec, opts ...agentcore.CallOption) (*agentcore.LLMResponse, error) {
	cfg := agentcore.ResolveCallConfig(opts)
	transformed := agentcore.TransformMessages(messages, l.model, nil)

	req := l.buildRequest(transformed, tools, cfg)

	resp, err := l.client.Chat(ctx, req)
	if err != nil {
		return nil, agentcore.NewTransportError(l.model.Provider, "chat", err)
	}

	msg := l.convertResponse(resp)
	msg.Provider = l.model.Provider
	msg.Api = l.model.API
	msg.Model = l.model.ID
	if msg.Usage != nil {
		msg.Usage.Finalize(l.model.Cost)
	}
	return &agentcore.LLMResponse{Message: msg}, nil
}

// GenerateStream implements agentcore.ChatModel, emitting fine-grained
// text/thinking/tool-call start/delta/end events as litellm streams them.
func (l *LiteLLMAdapter) GenerateStream(ctx context.Context, messages []agentcore.Message, tools []agentcore.ToolSpec, opts ...agentcore.CallOption) (<-chan agentcore.StreamEvent, error) {
	cfg := agentcore.ResolveCallConfig(opts)
	transformed := agentcore.TransformMessages(messages, l.model, nil)

	req := l.buildRequest(transformed, tools, cfg)

	stream, err := l.client.Stream(ctx, req)
	if err != nil {
		return nil, agentcore.NewTransportError(l.model.Provider, "stream", err)
	}

	out := make(chan agentcore.StreamEvent, 100)

	go func() {
		defer close(out)
		defer stream.Close()

		var (
			partial       = agentcore.Message{Role: agentcore.RoleAssistant, Provider: l.model.Provider, Api: l.model.API, Model: l.model.ID}
			textStarted   bool
			thinkStarted  bool
			aborted       bool
			finishReason  string
			builders      = make(map[int]*toolCallBuilder)
			toolStarted   = make(map[int]bool)
			toolContentIx = make(map[int]int)
			usage         *agentcore.Usage
		)

		for {
			chunk, err := stream.Next()
			if err != nil {
				if err == io.EOF {
					break
				}
				if ctx.Err() != nil {
					// Cooperative cancellation: stop consuming wire events and
					// fall through to finalize the partial as aborted instead
					// of erroring.
					aborted = true
					break
				}
				out <- agentcore.StreamEvent{Type: agentcore.StreamEventError, Err: agentcore.NewTransportError(l.model.Provider, "stream.Next", err)}
				return
			}
			if chunk == nil {
				continue
			}

			if chunk.Reasoning != nil && chunk.Reasoning.Content != "" {
				if !thinkStarted {
					thinkStarted = true
					partial.Content = append(partial.Content, agentcore.ThinkingBlock(""))
					idx := len(partial.Content) - 1
					out <- agentcore.StreamEvent{Type: agentcore.StreamEventThinkingStart, ContentIndex: idx, Message: partial}
				}
				idx := lastBlockIndex(partial.Content, agentcore.ContentThinking)
				partial.Content[idx].Thinking += chunk.Reasoning.Content
				out <- agentcore.StreamEvent{Type: agentcore.StreamEventThinkingDelta, ContentIndex: idx, Delta: chunk.Reasoning.Content, Message: partial}
			}

			if chunk.Content != "" {
				if !textStarted {
					textStarted = true
					partial.Content = append(partial.Content, agentcore.TextBlock(""))
					idx := len(partial.Content) - 1
					out <- agentcore.StreamEvent{Type: agentcore.StreamEventTextStart, ContentIndex: idx, Message: partial}
				}
				idx := lastBlockIndex(partial.Content, agentcore.ContentText)
				partial.Content[idx].Text += chunk.Content
				out <- agentcore.StreamEvent{Type: agentcore.StreamEventTextDelta, ContentIndex: idx, Delta: chunk.Content, Message: partial}
			}

			if chunk.ToolCallDelta != nil {
				applyToolCallDelta(builders, chunk.ToolCallDelta)
				idx := chunk.ToolCallDelta.Index
				if !toolStarted[idx] && builders[idx] != nil {
					toolStarted[idx] = true
					partial.Content = append(partial.Content, agentcore.ToolCallBlock(agentcore.ToolCall{
						ID:   builders[idx].id,
						Name: builders[idx].functionName,
					}))
					ci := len(partial.Content) - 1
					toolContentIx[idx] = ci
					out <- agentcore.StreamEvent{Type: agentcore.StreamEventToolCallStart, ContentIndex: ci, Message: partial}
				}
				if chunk.ToolCallDelta.ArgumentsDelta != "" {
					out <- agentcore.StreamEvent{Type: agentcore.StreamEventToolCallDelta, ContentIndex: toolContentIx[idx], Delta: chunk.ToolCallDelta.ArgumentsDelta, Message: partial}
				}
			}

			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
			if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
				usage = convertUsage(chunk.Usage)
			}
		}

		if thinkStarted {
			if idx := lastBlockIndex(partial.Content, agentcore.ContentThinking); idx >= 0 {
				out <- agentcore.StreamEvent{Type: agentcore.StreamEventThinkingEnd, ContentIndex: idx, Message: partial}
			}
		}
		if textStarted {
			if idx := lastBlockIndex(partial.Content, agentcore.ContentText); idx >= 0 {
				out <- agentcore.StreamEvent{Type: agentcore.StreamEventTextEnd, ContentIndex: idx, Message: partial}
			}
		}
		if calls := buildToolCalls(builders); len(calls) > 0 {
			indexes := make([]int, 0, len(builders))
			for idx := range builders {
				indexes = append(indexes, idx)
			}
			sort.Ints(indexes)
			for i, tc := range calls {
				idx := indexes[i]
				ci, started := toolContentIx[idx]
				if !started {
					partial.Content = append(partial.Content, agentcore.ToolCallBlock(tc))
					ci = len(partial.Content) - 1
				} else {
					tc := tc
					partial.Content[ci].ToolCall = &tc
				}
				out <- agentcore.StreamEvent{Type: agentcore.StreamEventToolCallEnd, ContentIndex: ci, Message: partial}
			}
		}

		partial.Usage = usage
		if partial.Usage != nil {
			partial.Usage.Finalize(l.model.Cost)
		}

		if aborted {
			abortErr := agentcore.NewAbortedError("stream.Next")
			partial.StopReason = agentcore.StopReasonAborted
			partial.ErrorMessage = abortErr.Error()
			out <- agentcore.StreamEvent{Type: agentcore.StreamEventError, Err: abortErr, Message: partial, StopReason: partial.StopReason}
			return
		}

		partial.StopReason = mapStopReason(finishReason)
		out <- agentcore.StreamEvent{Type: agentcore.StreamEventDone, Message: partial, StopReason: partial.StopReason}
	}()

	return out, nil
}

// buildRequest assembles a litellm.Request from transformed messages, tool
// specs, and the resolved per-call configuration.
func (l *LiteLLMAdapter) buildRequest(messages []agentcore.Message, tools []agentcore.ToolSpec, cfg agentcore.CallConfig) *litellm.Request {
	temperature := l.gen.Temperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	maxTokens := l.gen.MaxTokens
	if cfg.MaxTokens > 0 {
		maxTokens = cfg.MaxTokens
	}

	req := &litellm.Request{
		Model:       l.model.ID,
		Messages:    convertMessages(messages),
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	if cfg.ThinkingLevel != "" && cfg.ThinkingLevel != agentcore.ThinkingOff {
		level := agentcore.ClampThinkingLevel(cfg.ThinkingLevel, l.model.Compat.SupportsXHighThinking)
		req.Thinking = litellm.NewThinkingWithLevel(string(level))
	}

	if len(tools) > 0 {
		ltTools := make([]litellm.Tool, 0, len(tools))
		for _, t := range tools {
			if t.Name == "" {
				continue
			}
			ltTools = append(ltTools, litellm.Tool{
				Type: "function",
				Function: litellm.FunctionDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		req.Tools = ltTools
		req.ToolChoice = "auto"
	}

	// cfg.CacheRetention / cfg.SessionID are not yet wired to a litellm
	// request field: the client does not currently expose prompt-cache or
	// session controls. Revisit once it does.

	return req
}

func lastBlockIndex(blocks []agentcore.ContentBlock, ct agentcore.ContentType) int {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Type == ct {
			return i
		}
	}
	return -1
}

func convertMessages(messages []agentcore.Message) []litellm.Message {
	out := make([]litellm.Message, len(messages))
	for i, msg := range messages {
		lm := litellm.Message{
			Role:    string(msg.Role),
			Content: msg.TextContent(),
		}
		if msg.Role == agentcore.RoleTool {
			if id, ok := msg.ToolCallID(); ok {
				lm.ToolCallID = id
			}
		}
		if calls := msg.ToolCalls(); len(calls) > 0 {
			lm.ToolCalls = make([]litellm.ToolCall, len(calls))
			for j, call := range calls {
				lm.ToolCalls[j] = litellm.ToolCall{
					ID:   call.ID,
					Type: "function",
					Function: litellm.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Args),
					},
				}
			}
		}
		out[i] = lm
	}
	return out
}

func (l *LiteLLMAdapter) convertResponse(resp *litellm.Response) agentcore.Message {
	var content []agentcore.ContentBlock

	if resp.Reasoning != nil && resp.Reasoning.Content != "" {
		content = append(content, agentcore.ThinkingBlock(resp.Reasoning.Content))
	}
	if resp.Content != "" {
		content = append(content, agentcore.TextBlock(resp.Content))
	}
	for _, call := range resp.ToolCalls {
		content = append(content, agentcore.ToolCallBlock(agentcore.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: []byte(call.Function.Arguments),
		}))
	}

	return agentcore.Message{
		Role:       agentcore.RoleAssistant,
		Content:    content,
		StopReason: mapStopReason(resp.FinishReason),
		Usage:      convertUsage(&resp.Usage),
	}
}

func convertUsage(u *litellm.Usage) *agentcore.Usage {
	if u == nil || u.TotalTokens == 0 {
		return nil
	}
	return &agentcore.Usage{
		Input:       u.PromptTokens,
		Output:      u.CompletionTokens,
		CacheRead:   u.CacheReadInputTokens,
		CacheWrite:  u.CacheCreationInputTokens,
		TotalTokens: u.TotalTokens,
	}
}

func mapStopReason(reason string) agentcore.StopReason {
	switch reason {
	case "stop", "end_turn":
		return agentcore.StopReasonStop
	case "length", "max_tokens":
		return agentcore.StopReasonLength
	case "tool_calls", "tool_use":
		return agentcore.StopReasonToolUse
	default:
		if reason != "" {
			return agentcore.StopReason(reason)
		}
		return agentcore.StopReasonStop
	}
}

type toolCallBuilder struct {
	id           string
	functionName string
	arguments    strings.Builder
}

func applyToolCallDelta(builders map[int]*toolCallBuilder, delta *litellm.ToolCallDelta) {
	if builders == nil || delta == nil {
		return
	}
	b, ok := builders[delta.Index]
	if !ok {
		b = &toolCallBuilder{}
		builders[delta.Index] = b
	}
	if delta.ID != "" {
		b.id = delta.ID
	}
	if delta.FunctionName != "" {
		b.functionName = delta.FunctionName
	}
	if delta.ArgumentsDelta != "" {
		b.arguments.WriteString(delta.ArgumentsDelta)
	}
}

func buildToolCalls(builders map[int]*toolCallBuilder) []agentcore.ToolCall {
	if len(builders) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(builders))
	for idx := range builders {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]agentcore.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		b := builders[idx]
		if b == nil {
			continue
		}
		args := b.arguments.String()
		if !json.Valid([]byte(args)) {
			if repaired, err := json.Marshal(agentcore.ParseStreamingJSON(args)); err == nil {
				args = string(repaired)
			}
		}
		calls = append(calls, agentcore.ToolCall{
			ID:   b.id,
			Name: b.functionName,
			Args: []byte(args),
		})
	}
	return calls
}
