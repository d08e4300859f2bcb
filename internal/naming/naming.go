// Package naming decides which name is printed on a certificate and how it
// is capitalized.
package naming

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"certgen/internal/roster"
)

// wordPattern matches a run starting at an ASCII word character and
// extending to the next whitespace.
var wordPattern = regexp.MustCompile(`\w\S*`)

// Normalize upper-cases the first character of every word and lower-cases
// the rest. Hyphenated and apostrophized words count as one word, and roman
// numerals come out as "Iii"; both are accepted limitations.
func Normalize(s string) string {
	return wordPattern.ReplaceAllStringFunc(s, capitalize)
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
}

// Resolve picks the display name for a matched entry. The stored name wins
// whenever the roster has one; otherwise the caller's name is used. The
// result is always normalized.
func Resolve(format roster.Format, entry roster.Entry, callerName string) string {
	if format == roster.FormatTabular && entry.HasName {
		return Normalize(entry.Name)
	}
	return Normalize(callerName)
}
