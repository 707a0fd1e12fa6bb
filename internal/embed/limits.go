package embed

import "strings"

// Known per-model input token limits. Unlisted models get a conservative
// default so oversized inputs are truncated rather than rejected.
var modelTokenLimits = map[string]int{
	"text-embedding-3-small": 8191,
	"text-embedding-3-large": 8191,
	"text-embedding-ada-002": 8191,
	"voyage-3-large":         32000,
	"voyage-3":               32000,
	"voyage-3-lite":          32000,
	"voyage-code-3":          32000,
	"nomic-embed-text":       8192,
	"mxbai-embed-large":      512,
}

const (
	defaultTokenLimit = 8192
	// The voyage family rejects oversized batches hard, so unknown voyage
	// models get a tighter cap.
	voyageFallbackLimit = 2048

	// Rough approximation used for truncation: 4 characters per token.
	charsPerToken = 4
)

// MaxInputTokensFor resolves the input token limit for a model.
func MaxInputTokensFor(model string) int {
	if limit, ok := modelTokenLimits[model]; ok {
		return limit
	}
	if strings.HasPrefix(model, "voyage-") {
		return voyageFallbackLimit
	}
	return defaultTokenLimit
}

// TruncateForModel trims text to approximately maxTokens using the
// chars-per-token approximation. Zero or negative maxTokens means no limit.
// Truncation lands on a rune boundary.
func TruncateForModel(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	maxChars := maxTokens * charsPerToken
	if len(text) <= maxChars {
		return text
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
