package indexcore

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// Attribute tokenizer
// =============================================================================

// splitTokens breaks an attribute value into index tokens: NFC-normalized,
// lowercased, split on anything that is neither letter nor digit. The
// position of a token is its index in the split sequence, counted across the
// whole attribute value.
func splitTokens(value string) []string {
	if value == "" {
		return nil
	}

	normalized := strings.ToLower(norm.NFC.String(value))

	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}
