package agentcore

// EstimateTokens approximates a message's token count via chars/4, a
// conservative overestimate used when no provider-reported Usage is
// available for it yet.
func EstimateTokens(msg AgentMessage) int {
	var chars int

	m, ok := msg.(Message)
	if !ok {
		return 0
	}
	for _, b := range m.Content {
		switch b.Type {
		case ContentText:
			chars += len(b.Text)
		case ContentThinking:
			chars += len(b.Thinking)
		case ContentToolCall:
			if b.ToolCall != nil {
				chars += len(b.ToolCall.Name) + len(b.ToolCall.Args)
			}
		}
	}

	return max((chars+3)/4, 1) // ceil(chars/4), at least 1
}

// EstimateTotal sums EstimateTokens across a message list.
func EstimateTotal(msgs []AgentMessage) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m)
	}
	return total
}

// ContextUsageEstimate is the hybrid token estimation result: actual
// provider-reported usage for the bulk of history, chars/4 estimation for
// whatever has accumulated since.
type ContextUsageEstimate struct {
	Tokens         int
	UsageTokens    int
	TrailingTokens int
	LastUsageIndex int // index of the last assistant message carrying Usage, or -1
}

func sumUsageTokens(u *Usage) int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.Input + u.Output + u.CacheRead + u.CacheWrite
}

// EstimateContextTokens estimates current context window occupancy: it
// walks backward to the last non-error, non-aborted assistant message
// carrying provider-reported Usage, takes that as ground truth, and adds a
// chars/4 estimate for every message appended since (steering messages,
// tool results, or a new assistant turn still in flight).
func EstimateContextTokens(msgs []AgentMessage) ContextUsageEstimate {
	lastIdx := -1
	var lastUsage *Usage
	for i := len(msgs) - 1; i >= 0; i-- {
		msg, ok := msgs[i].(Message)
		if !ok || msg.Role != RoleAssistant {
			continue
		}
		if msg.StopReason == StopReasonAborted || msg.StopReason == StopReasonError {
			continue
		}
		if msg.Usage != nil {
			lastIdx = i
			lastUsage = msg.Usage
			break
		}
	}

	if lastIdx < 0 {
		total := EstimateTotal(msgs)
		return ContextUsageEstimate{Tokens: total, TrailingTokens: total, LastUsageIndex: -1}
	}

	usageTokens := sumUsageTokens(lastUsage)

	var trailing int
	for i := lastIdx + 1; i < len(msgs); i++ {
		trailing += EstimateTokens(msgs[i])
	}

	return ContextUsageEstimate{
		Tokens:         usageTokens + trailing,
		UsageTokens:    usageTokens,
		TrailingTokens: trailing,
		LastUsageIndex: lastIdx,
	}
}

// ContextEstimateAdapter adapts EstimateContextTokens to the
// ContextEstimateFn signature expected by WithContextEstimate.
func ContextEstimateAdapter(msgs []AgentMessage) (tokens, usageTokens, trailingTokens int) {
	e := EstimateContextTokens(msgs)
	return e.Tokens, e.UsageTokens, e.TrailingTokens
}
