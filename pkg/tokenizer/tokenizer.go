// Package tokenizer estimates LLM token counts for usage accounting when a
// provider stream does not report them.
package tokenizer

import "strings"

// Estimate returns an approximate token count for text: about four bytes
// per token, but never fewer than the number of words.
func Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	words := len(strings.Fields(text))
	byBytes := (len(text) + 3) / 4
	return max(words, byBytes, 1)
}
