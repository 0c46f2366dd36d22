package modeladapter

import "unicode/utf8"

// TokenEstimator estimates token counts for prompt text using a
// character-to-token heuristic (approximately 1 token per 4 characters for
// English text). The zero value is ready to use.
type TokenEstimator struct{}

// charsToTokens converts a character count to an estimated token count using the
// 1-token-per-4-characters heuristic.
func charsToTokens(chars int) int {
	return (chars + 3) / 4 // round up
}

// EstimateText estimates the tokens needed to encode s.
func (e TokenEstimator) EstimateText(s string) int {
	return charsToTokens(utf8.RuneCountInString(s))
}

// EstimateRequest estimates the input tokens of a whole request.
func (e TokenEstimator) EstimateRequest(r Request) int {
	return e.EstimateText(r.System) + e.EstimateText(r.Prompt)
}

// TruncateToTokens cuts s so its estimate does not exceed limit tokens.
// Cuts happen on rune boundaries.
func (e TokenEstimator) TruncateToTokens(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if e.EstimateText(s) <= limit {
		return s
	}

	maxRunes := limit * 4
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}

	return s
}
