package agentcore

import "regexp"

// overflowPatterns is the closed, case-insensitive catalog of error-message
// substrings/regexes that indicate context-length exhaustion across
// providers (component H, §6). Each entry is annotated with the provider it
// was observed from; the catalog itself is provider-agnostic.
var overflowPatterns = compileOverflowPatterns([]string{
	`prompt is too long`,                       // Anthropic
	`input is too long for requested model`,    // Amazon Bedrock
	`exceeds the context window`,                // OpenAI
	`input token count.*exceeds the maximum`,    // Google
	`maximum prompt length is \d+`,              // xAI
	`reduce the length of the messages`,         // Groq
	`maximum context length is \d+ tokens`,       // OpenRouter
	`exceeds the limit of \d+`,                   // GitHub Copilot
	`exceeds the available context size`,         // llama.cpp
	`greater than the context length`,            // LM Studio
	`context window exceeds limit`,               // MiniMax
	`exceeded model token limit`,                 // Kimi For Coding
	`context[_ ]length[_ ]exceeded`,              // generic
	`too many tokens`,                            // generic
	`token limit exceeded`,                       // generic
})

// noBodyOverflowPattern matches the silent 400/413-with-no-body shape
// returned by Cerebras and Mistral on overflow.
var noBodyOverflowPattern = regexp.MustCompile(`(?i)^4(00|13)\s*(status code)?\s*\(no body\)`)

func compileOverflowPatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

// IsContextOverflow is the Overflow Detector (component H): a pure function
// of a finalized assistant Message and an optional context window. It
// returns true iff any of:
//
//  1. stop_reason == error and error_message matches the overflow catalog.
//  2. stop_reason == error and error_message matches the silent 400/413
//     no-body shape.
//  3. stop_reason == stop, a context window is supplied, and
//     usage.input + usage.cache_read exceeds it (a provider accepted an
//     over-long request and silently truncated instead of failing).
func IsContextOverflow(message Message, contextWindow int) bool {
	if message.StopReason == StopReasonError && message.ErrorMessage != "" {
		for _, p := range overflowPatterns {
			if p.MatchString(message.ErrorMessage) {
				return true
			}
		}
		if noBodyOverflowPattern.MatchString(message.ErrorMessage) {
			return true
		}
	}

	if contextWindow > 0 && message.StopReason == StopReasonStop && message.Usage != nil {
		if message.Usage.Input+message.Usage.CacheRead > contextWindow {
			return true
		}
	}

	return false
}

// OverflowPatterns returns a copy of the catalog for tests.
func OverflowPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(overflowPatterns))
	copy(out, overflowPatterns)
	return out
}
