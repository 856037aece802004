package agentcore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ProxyEventType identifies proxy streaming event types.
// Proxy events are bandwidth-optimized: they carry only deltas,
// not the full partial message on each event.
type ProxyEventType string

const (
	ProxyEventTextDelta     ProxyEventType = "text_delta"
	ProxyEventThinkingDelta ProxyEventType = "thinking_delta"
	ProxyEventToolCallStart ProxyEventType = "toolcall_start"
	ProxyEventToolCallDelta ProxyEventType = "toolcall_delta"
	ProxyEventDone          ProxyEventType = "done"
	ProxyEventError         ProxyEventType = "error"
)

// ProxyEvent is a bandwidth-optimized event from a remote proxy server.
// The client reconstructs the full message incrementally from these deltas.
type ProxyEvent struct {
	Type       ProxyEventType `json:"type"`
	Delta      string         `json:"delta,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	StopReason StopReason     `json:"stop_reason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
	Err        error          `json:"-"`
}

// ProxyStreamFn makes an LLM call through a remote proxy
// and returns a channel of bandwidth-optimized ProxyEvents.
type ProxyStreamFn func(ctx context.Context, req *LLMRequest) (<-chan ProxyEvent, error)

// ProxyModel implements ChatModel by forwarding to a remote proxy server.
// It reconstructs streaming events from bandwidth-optimized ProxyEvents.
//
// Usage:
//
//	proxy := agentcore.NewProxyModel(myProxyFn)
//	agent := agentcore.NewAgent(agentcore.WithModel(proxy))
type ProxyModel struct {
	streamFn ProxyStreamFn
}

// NewProxyModel creates a ChatModel that delegates to a proxy stream function.
func NewProxyModel(fn ProxyStreamFn) *ProxyModel {
	return &ProxyModel{streamFn: fn}
}

// Generate collects the full streamed response synchronously.
func (p *ProxyModel) Generate(ctx context.Context, messages []Message, tools []ToolSpec, opts ...CallOption) (*LLMResponse, error) {
	ch, err := p.GenerateStream(ctx, messages, tools, opts...)
	if err != nil {
		return nil, err
	}
	var final Message
	for ev := range ch {
		switch ev.Type {
		case StreamEventDone:
			final = ev.Message
		case StreamEventError:
			return nil, ev.Err
		}
	}
	return &LLMResponse{Message: final}, nil
}

// GenerateStream converts proxy events into standard StreamEvents.
func (p *ProxyModel) GenerateStream(ctx context.Context, messages []Message, tools []ToolSpec, opts ...CallOption) (<-chan StreamEvent, error) {
	proxyCh, err := p.streamFn(ctx, &LLMRequest{Messages: messages, Tools: tools})
	if err != nil {
		return nil, err
	}

	eventCh := make(chan StreamEvent, 100)
	go func() {
		defer close(eventCh)

		var (
			partial      = Message{Role: RoleAssistant}
			textStarted  bool
			thinkStarted bool
		)

		for ev := range proxyCh {
			switch ev.Type {
			case ProxyEventTextDelta:
				idx := proxyFindOrCreate(&partial.Content, ContentText)
				partial.Content[idx].Text += ev.Delta
				if !textStarted {
					textStarted = true
					eventCh <- StreamEvent{Type: StreamEventTextStart, ContentIndex: idx, Message: partial}
				}
				eventCh <- StreamEvent{Type: StreamEventTextDelta, ContentIndex: idx, Delta: ev.Delta, Message: partial}

			case ProxyEventThinkingDelta:
				idx := proxyFindOrCreate(&partial.Content, ContentThinking)
				partial.Content[idx].Thinking += ev.Delta
				if !thinkStarted {
					thinkStarted = true
					eventCh <- StreamEvent{Type: StreamEventThinkingStart, ContentIndex: idx, Message: partial}
				}
				eventCh <- StreamEvent{Type: StreamEventThinkingDelta, ContentIndex: idx, Delta: ev.Delta, Message: partial}

			case ProxyEventToolCallStart:
				partial.Content = append(partial.Content, ToolCallBlock(ToolCall{
					ID:   ev.ToolCallID,
					Name: ev.ToolName,
				}))
				eventCh <- StreamEvent{Type: StreamEventToolCallStart, Message: partial}

			case ProxyEventToolCallDelta:
				if idx := proxyLastToolCall(partial.Content); idx >= 0 && partial.Content[idx].ToolCall != nil {
					partial.Content[idx].ToolCall.Args = append(partial.Content[idx].ToolCall.Args, json.RawMessage(ev.Delta)...)
				}
				eventCh <- StreamEvent{Type: StreamEventToolCallDelta, Delta: ev.Delta, Message: partial}

			case ProxyEventDone:
				partial.StopReason = ev.StopReason
				partial.Usage = ev.Usage
				partial.Timestamp = time.Now()
				eventCh <- StreamEvent{Type: StreamEventDone, Message: partial, StopReason: ev.StopReason}

			case ProxyEventError:
				eventCh <- StreamEvent{Type: StreamEventError, Err: ev.Err}
				return
			}
		}
	}()

	return eventCh, nil
}

// SupportsTools reports that the proxy can handle tool calls.
func (p *ProxyModel) SupportsTools() bool { return true }

// proxyFindOrCreate returns the index of the last block of the given type,
// or appends a new empty block and returns its index.
func proxyFindOrCreate(blocks *[]ContentBlock, ct ContentType) int {
	for i := len(*blocks) - 1; i >= 0; i-- {
		if (*blocks)[i].Type == ct {
			return i
		}
	}
	switch ct {
	case ContentText:
		*blocks = append(*blocks, TextBlock(""))
	case ContentThinking:
		*blocks = append(*blocks, ThinkingBlock(""))
	}
	return len(*blocks) - 1
}

// proxyLastToolCall returns the index of the last tool call block.
func proxyLastToolCall(blocks []ContentBlock) int {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Type == ContentToolCall {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// HTTP/SSE proxy wire protocol (external interface, §6)
// ---------------------------------------------------------------------------

// HTTPProxyClient is a ProxyStreamFn backed by an HTTP POST that responds
// with a text/event-stream body framed as one "data: <json ProxyEvent>\n\n"
// record per event, terminated by a final done or error event. It never
// sends an explicit "[DONE]" sentinel: the stream's close (EOF) after a
// ProxyEventDone/ProxyEventError record is the end-of-stream signal.
type HTTPProxyClient struct {
	// URL is the proxy endpoint, e.g. "https://proxy.internal/v1/stream".
	URL string
	// Client is the HTTP client used to issue the request. http.DefaultClient if nil.
	Client *http.Client
	// Headers are added to every request (e.g. Authorization).
	Headers map[string]string
}

// NewHTTPProxyClient returns a ProxyStreamFn that POSTs the request body as
// JSON and decodes an SSE response into ProxyEvents.
func NewHTTPProxyClient(url string, headers map[string]string) ProxyStreamFn {
	c := &HTTPProxyClient{URL: url, Headers: headers}
	return c.Stream
}

// Stream implements ProxyStreamFn.
func (c *HTTPProxyClient) Stream(ctx context.Context, req *LLMRequest) (<-chan ProxyEvent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode proxy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range c.Headers {
		httpReq.Header.Set(k, v)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("proxy request: status %d", resp.StatusCode)
	}

	out := make(chan ProxyEvent, 32)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				data, ok = strings.CutPrefix(line, "data:")
				if !ok {
					continue // blank line / comment / other SSE field, ignored
				}
			}
			data = strings.TrimSpace(data)
			if data == "" {
				continue
			}

			var ev ProxyEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				out <- ProxyEvent{Type: ProxyEventError, Err: fmt.Errorf("decode proxy event: %w", err)}
				return
			}
			out <- ev
			if ev.Type == ProxyEventDone || ev.Type == ProxyEventError {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- ProxyEvent{Type: ProxyEventError, Err: fmt.Errorf("read proxy stream: %w", err)}
		}
	}()

	return out, nil
}

// ---------------------------------------------------------------------------
// Agent event wire encoding (external interface, §6)
// ---------------------------------------------------------------------------

// wireEvent is the JSON-serializable projection of Event: AgentMessage is
// narrowed to its concrete Message form (custom AgentMessage implementations
// are not wire-portable) and error values are carried as strings.
type wireEvent struct {
	Type        EventType        `json:"type"`
	Message     *Message         `json:"message,omitempty"`
	Delta       string           `json:"delta,omitempty"`
	ToolID      string           `json:"tool_id,omitempty"`
	Tool        string           `json:"tool,omitempty"`
	ToolLabel   string           `json:"tool_label,omitempty"`
	Args        json.RawMessage  `json:"args,omitempty"`
	Result      json.RawMessage  `json:"result,omitempty"`
	IsError     bool             `json:"is_error,omitempty"`
	ToolResults []ToolResult     `json:"tool_results,omitempty"`
	Err         string           `json:"error,omitempty"`
	NewMessages []Message        `json:"new_messages,omitempty"`
	RetryInfo   *wireRetryInfo   `json:"retry_info,omitempty"`
}

type wireRetryInfo struct {
	Attempt    int    `json:"attempt"`
	MaxRetries int    `json:"max_retries"`
	DelayMS    int64  `json:"delay_ms"`
	Err        string `json:"error,omitempty"`
}

// EncodeEvent serializes an Event to its JSON wire form for persistence or
// replay.
func EncodeEvent(ev Event) ([]byte, error) {
	w := wireEvent{
		Type:        ev.Type,
		Delta:       ev.Delta,
		ToolID:      ev.ToolID,
		Tool:        ev.Tool,
		ToolLabel:   ev.ToolLabel,
		Args:        ev.Args,
		Result:      ev.Result,
		IsError:     ev.IsError,
		ToolResults: ev.ToolResults,
	}
	if ev.Message != nil {
		if msg, ok := ev.Message.(Message); ok {
			w.Message = &msg
		}
	}
	if ev.Err != nil {
		w.Err = ev.Err.Error()
	}
	if len(ev.NewMessages) > 0 {
		w.NewMessages = CollectMessages(ev.NewMessages)
	}
	if ev.RetryInfo != nil {
		ri := &wireRetryInfo{
			Attempt:    ev.RetryInfo.Attempt,
			MaxRetries: ev.RetryInfo.MaxRetries,
			DelayMS:    ev.RetryInfo.Delay.Milliseconds(),
		}
		if ev.RetryInfo.Err != nil {
			ri.Err = ev.RetryInfo.Err.Error()
		}
		w.RetryInfo = ri
	}
	return json.Marshal(w)
}

// DecodeEvent parses the JSON wire form produced by EncodeEvent back into
// an Event. Err is reconstructed as a plain error carrying the original
// message text (error identity/type is not preserved across the wire).
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev := Event{
		Type:        w.Type,
		Delta:       w.Delta,
		ToolID:      w.ToolID,
		Tool:        w.Tool,
		ToolLabel:   w.ToolLabel,
		Args:        w.Args,
		Result:      w.Result,
		IsError:     w.IsError,
		ToolResults: w.ToolResults,
	}
	if w.Message != nil {
		ev.Message = *w.Message
	}
	if w.Err != "" {
		ev.Err = fmt.Errorf("%s", w.Err)
	}
	if len(w.NewMessages) > 0 {
		ev.NewMessages = ToAgentMessages(w.NewMessages)
	}
	if w.RetryInfo != nil {
		ri := &RetryInfo{
			Attempt:    w.RetryInfo.Attempt,
			MaxRetries: w.RetryInfo.MaxRetries,
			Delay:      time.Duration(w.RetryInfo.DelayMS) * time.Millisecond,
		}
		if w.RetryInfo.Err != "" {
			ri.Err = fmt.Errorf("%s", w.RetryInfo.Err)
		}
		ev.RetryInfo = ri
	}
	return ev, nil
}
