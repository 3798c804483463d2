// Package textutil normalises untrusted free text before it is persisted.
package textutil

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// Clean trims value, converts it to NFC and removes any markup. Entities produced by the
// sanitiser are decoded again so "a & b" round-trips unchanged.
func Clean(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = norm.NFC.String(value)
	if strings.ContainsAny(value, "<>") {
		value = html.UnescapeString(strictPolicy.Sanitize(value))
	}
	return strings.TrimSpace(value)
}

// Length counts user perceived characters after NFC composition.
func Length(value string) int {
	return utf8.RuneCountInString(value)
}

// StripSpaces removes every whitespace rune.
func StripSpaces(value string) string {
	return strings.Join(strings.Fields(value), "")
}

// Truncate cuts value to at most limit runes. A non-positive limit returns value unchanged.
func Truncate(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	count := 0
	for i := range value {
		if count == limit {
			return value[:i]
		}
		count++
	}
	return value
}

// SingleLine replaces control runes with spaces, trims the result and cuts it to limit runes.
// Use it for values echoed into responses and log fields.
func SingleLine(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
	return strings.TrimSpace(Truncate(strings.TrimSpace(value), limit))
}
