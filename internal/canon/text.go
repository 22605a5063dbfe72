package canon

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Text normalizes free text for hashing: NFC, surrounding whitespace trimmed,
// inner whitespace runs collapsed to one space, lowercased.
func Text(s string) string {
	return strings.ToLower(collapse(s))
}

// collapse applies NFC and whitespace normalization but keeps case.
func collapse(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
