package engine

import "strings"

// The real tokenizer lives in the backend; the engine only needs a budget
// guard before submission. Whitespace fields underestimate subword counts, so
// pad the estimate by a third, matching the common ~0.75 words/token rule.

// estimateTokens approximates the token count of text.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return words + words/3
}

// truncateToTokenBudget cuts text to roughly budget tokens on a word
// boundary. Returns the (possibly shortened) text and whether it was cut.
func truncateToTokenBudget(text string, budget int) (string, bool) {
	if budget <= 0 || estimateTokens(text) <= budget {
		return text, false
	}
	words := strings.Fields(text)
	// invert the padding applied in estimateTokens
	keep := budget * 3 / 4
	if keep < 1 {
		keep = 1
	}
	if keep >= len(words) {
		return text, false
	}
	return strings.Join(words[:keep], " "), true
}
