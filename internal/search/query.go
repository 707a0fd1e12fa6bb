package search

import (
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

// TokenizeQuery splits a raw query into word tokens. Punctuation and
// operators are dropped entirely.
func TokenizeQuery(raw string) []string {
	return tokenRe.FindAllString(raw, -1)
}

// BuildFTSQuery turns a raw query into the full-text query string: each
// token quoted, joined with OR. Requiring every token would make recall
// collapse on natural-language queries.
func BuildFTSQuery(raw string) string {
	tokens := TokenizeQuery(raw)
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " OR ")
}

// PlainTokens joins the tokens with spaces for the $text tier, whose own
// default semantics already OR unquoted terms.
func PlainTokens(raw string) string {
	return strings.Join(TokenizeQuery(raw), " ")
}
