// Package provider adapts external LLM client libraries to the
// agentcore.ChatModel interface, translating agentcore's provider-neutral
// Message/Context/CallOptions shapes to and from a transport library's own
// request/response/stream types.
package provider

import (
	"strings"

	"github.com/riverrun/agentcore"
)

// ModelCapability identifies a model feature for lookup-table-driven
// behavior (tool calling, streaming, multimodal input).
type ModelCapability string

const (
	CapabilityChat         ModelCapability = "chat"
	CapabilityCompletion   ModelCapability = "completion"
	CapabilityToolCalling  ModelCapability = "tool_calling"
	CapabilityStreaming    ModelCapability = "streaming"
	CapabilityMultimodal   ModelCapability = "multimodal"
	CapabilityFunctionCall ModelCapability = "function_call"
)

// GenerationConfig holds default sampling parameters applied when a call
// does not override them via agentcore.CallOption.
type GenerationConfig struct {
	Temperature float64
	MaxTokens   int
}

var DefaultGenerationConfig = &GenerationConfig{
	Temperature: 0.7,
	MaxTokens:   1000,
}

// modelTable is the static capability/limits catalog keyed by model id,
// covering the families the adapter is exercised against. Unknown models
// fall back to conservative defaults rather than failing closed.
var modelTable = map[string]agentcore.Model{
	"gpt-5": {
		ID: "gpt-5", Provider: "openai", API: "openai",
		ContextWindow: 400000, MaxTokens: 128000, Reasoning: true,
		Input: []string{"text", "image"},
		Cost:  agentcore.ModelCost{Input: 1.25, Output: 10},
		Compat: agentcore.CompatHints{
			SupportsCacheControl: false, SupportsXHighThinking: true,
		},
	},
	"gpt-4.1": {
		ID: "gpt-4.1", Provider: "openai", API: "openai",
		ContextWindow: 1047576, MaxTokens: 32768,
		Input: []string{"text", "image"},
		Cost:  agentcore.ModelCost{Input: 2, Output: 8},
	},
	"claude-4-sonnet": {
		ID: "claude-4-sonnet", Provider: "anthropic", API: "anthropic",
		ContextWindow: 200000, MaxTokens: 128000, Reasoning: true,
		Input: []string{"text", "image"},
		Cost:  agentcore.ModelCost{Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
		Compat: agentcore.CompatHints{
			RequiresThinkingAsText: false,
			ThinkingFieldName:      "thinking",
			SupportsCacheControl:   true,
			SupportsXHighThinking:  false,
		},
	},
	"claude-3.7-sonnet": {
		ID: "claude-3.7-sonnet", Provider: "anthropic", API: "anthropic",
		ContextWindow: 200000, MaxTokens: 128000, Reasoning: true,
		Input: []string{"text", "image"},
		Cost:  agentcore.ModelCost{Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
		Compat: agentcore.CompatHints{SupportsCacheControl: true},
	},
	"gemini-2.5-pro": {
		ID: "gemini-2.5-pro", Provider: "google", API: "google",
		ContextWindow: 1048576, MaxTokens: 65536, Reasoning: true,
		Input: []string{"text", "image"},
		Cost:  agentcore.ModelCost{Input: 1.25, Output: 10},
		Compat: agentcore.CompatHints{
			RequiresThinkingAsText: true, // Gemini has no durable signed-thinking replay across providers
		},
	},
	"gemini-2.5-flash": {
		ID: "gemini-2.5-flash", Provider: "google", API: "google",
		ContextWindow: 1048576, MaxTokens: 65536, Reasoning: true,
		Input:  []string{"text", "image"},
		Cost:   agentcore.ModelCost{Input: 0.3, Output: 2.5},
		Compat: agentcore.CompatHints{RequiresThinkingAsText: true},
	},
}

// LookupModel returns the static descriptor for id, or a conservative
// fallback descriptor (text-only, 4096 max tokens, provider inferred from
// id's prefix) when id is not in the table.
func LookupModel(id string) agentcore.Model {
	if m, ok := modelTable[id]; ok {
		return m
	}
	provider, api := inferProviderAPI(id)
	return agentcore.Model{
		ID: id, Provider: provider, API: api,
		ContextWindow: 4096, MaxTokens: 4096,
		Input: []string{"text"},
	}
}

func inferProviderAPI(id string) (provider, api string) {
	switch {
	case strings.HasPrefix(id, "gpt-") || strings.HasPrefix(id, "o1") || strings.HasPrefix(id, "o3"):
		return "openai", "openai"
	case strings.HasPrefix(id, "claude-"):
		return "anthropic", "anthropic"
	case strings.HasPrefix(id, "gemini-"):
		return "google", "google"
	default:
		return "unknown", "unknown"
	}
}

// SupportsToolCalling reports whether model id is known to support function
// calling. Unknown models default to true: most current-generation chat
// models do, and a ToolSpec sent to one that doesn't is simply ignored by
// the transport rather than causing a hard failure.
func SupportsToolCalling(id string) bool {
	return true
}
