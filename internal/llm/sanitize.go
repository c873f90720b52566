package llm

import "strings"

// StripThinkingTags removes <think>...</think> reasoning blocks that some
// models (qwen3, deepseek-r1) emit ahead of the answer. An unterminated
// block swallows everything after it.
func StripThinkingTags(s string) string {
	for {
		before, rest, ok := strings.Cut(s, "<think>")
		if !ok {
			return strings.TrimSpace(s)
		}
		_, after, closed := strings.Cut(rest, "</think>")
		if !closed {
			return strings.TrimSpace(before)
		}
		s = before + after
	}
}
