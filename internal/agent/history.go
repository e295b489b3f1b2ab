package agent

import (
	"encoding/json"
	"strings"
)

const (
	// DefaultTokenBudget is the approximate context budget a conversation
	// must fit in before each model call.
	DefaultTokenBudget = 150000

	// protectedTail is the number of most recent messages (one full tool
	// round) that trimming never alters or evicts.
	protectedTail = 4

	rowKeep         = 5
	maxOpaqueString = 2000
	truncatedMark   = "... [truncated]"
)

// EstimateTokens approximates the token cost of a message sequence as
// serialized length over four. Cheap on purpose: no tokenizer round trip
// on every turn.
func EstimateTokens(msgs []Message) int {
	b, err := json.Marshal(msgs)
	if err != nil {
		return 0
	}
	return len(b) / 4
}

// TrimHistory returns a conversation that fits the token budget, or gets as
// close as the protected tail allows. Older bulky tool results are shrunk
// first; if that is not enough, whole turns are evicted oldest-first. The
// input slice is never mutated.
func TrimHistory(history []Message, budget int) []Message {
	if len(history) == 0 {
		return []Message{}
	}
	if EstimateTokens(history) <= budget {
		return history
	}

	msgs := make([]Message, len(history))
	copy(msgs, history)

	// First pass: truncate large tool results in everything but the last
	// two turns.
	for i := 0; i < len(msgs)-protectedTail; i++ {
		msgs[i] = shrinkToolResults(msgs[i])
	}

	// Second pass: drop oldest turns. Each turn is evicted whole, and only
	// when every message in it sits outside the protected tail. Evicting a
	// user message without its assistant reply would leave an
	// assistant-first conversation the messages API rejects.
	for EstimateTokens(msgs) > budget {
		n := frontTurnLen(msgs)
		if len(msgs)-n < protectedTail {
			break
		}
		msgs = msgs[n:]
	}

	return msgs
}

// frontTurnLen counts the leading messages that form one conversational
// turn: the front message, its assistant reply, and the tool results
// answering that reply.
func frontTurnLen(msgs []Message) int {
	n := 1
	if n < len(msgs) && msgs[n].Role == RoleAssistant {
		n++
	}
	if n < len(msgs) && msgs[n].onlyToolResults() {
		n++
	}
	return n
}

func shrinkToolResults(m Message) Message {
	touched := false
	blocks := make([]ContentBlock, len(m.Blocks))
	copy(blocks, m.Blocks)
	for i, b := range blocks {
		if b.Type != BlockToolResult || len(b.Content) <= maxOpaqueString {
			continue
		}
		if strings.HasSuffix(b.Content, truncatedMark) {
			continue
		}
		blocks[i].Content = shrinkResult(b.Content)
		touched = true
	}
	if !touched {
		return m
	}
	m.Blocks = blocks
	return m
}

// shrinkResult cuts a serialized tool result down. Structured payloads keep
// their summary fields but lose row data; opaque strings are hard-cut.
func shrinkResult(content string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil || payload == nil {
		return content[:maxOpaqueString] + truncatedMark
	}
	truncated := false
	if rows, ok := payload["rows"].([]any); ok && len(rows) > rowKeep {
		payload["rows"] = rows[:rowKeep]
		truncated = true
	}
	if results, ok := payload["results"].([]any); ok && len(results) > rowKeep {
		payload["results"] = results[:rowKeep]
		truncated = true
	}
	if !truncated {
		return content
	}
	payload["_truncated_for_context"] = true
	out, err := json.Marshal(payload)
	if err != nil {
		return content[:maxOpaqueString] + truncatedMark
	}
	return string(out)
}
