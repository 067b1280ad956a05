// Package textutil holds helpers for cleaning extracted page text.
package textutil

import "strings"

// Collapse trims the text and folds runs of whitespace (including newlines
// left behind by block elements) into single spaces, so character caps
// applied downstream spend their budget on words.
func Collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Truncate returns at most max characters of text, measured in runes so a
// multi-byte character is never split.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
