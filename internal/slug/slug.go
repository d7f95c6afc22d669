// Package slug converts free-text identifying attributes (player names,
// product lines, variation names) into canonical lookup keys. Keys are
// lowercase kebab-case, ASCII alphanumerics and hyphens only.
//
// Make is pure and total: it never fails and is idempotent, so keys can be
// regenerated from a parsed record at any time without drift.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripDiacritics decomposes to NFD, drops combining marks, recomposes.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make converts text to a canonical lookup key: lowercase, diacritics
// stripped, whitespace runs collapsed to single hyphens, everything outside
// [a-z0-9-] removed, repeated hyphens collapsed, leading/trailing hyphens
// trimmed. Empty input yields an empty key, which matchers treat as "no
// constraint" rather than an equality filter.
func Make(text string) string {
	if text == "" {
		return ""
	}

	if ascii, _, err := transform.String(stripDiacritics, text); err == nil {
		text = ascii
	}
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))

	lastHyphen := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || r == '-':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		default:
			// Apostrophes, periods and other punctuation vanish so that
			// "Ken Griffey Jr." and "Ken Griffey Jr" produce the same key.
		}
	}

	return strings.Trim(b.String(), "-")
}

// Keys holds the canonical identifiers derived from a parsed record.
// Derived, never persisted on its own.
type Keys struct {
	Subject string
	Line    string
	Variant string
}
