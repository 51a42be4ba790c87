package monitoring

import "strings"

// EstimateTokens approximates token usage for a piece of text. Providers that
// report usage take precedence; this heuristic covers the ones that do not.
// Roughly four characters per token, adjusted per model family.
func EstimateTokens(text, model string) int {
	base := len(text) / 4

	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "gemini"):
		return int(float64(base) * 0.9)
	default:
		return base
	}
}
