// Package sanitize provides text sanitization for prospect-supplied input.
package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips HTML and folds the result to NFC so that visually identical
// answers compare equal.
func Text(s string) string {
	return norm.NFC.String(StripHTML(s))
}

// Answers sanitizes every string value of a flat answer map in place and
// returns it. Nested values are left untouched.
func Answers(values map[string]any) map[string]any {
	for key, value := range values {
		if s, ok := value.(string); ok {
			values[key] = Text(s)
		}
	}
	return values
}
