package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes characters and removes combining marks, turning
// "São" into "Sao" and "Ñuñoa" into "Nunoa".
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes a free-text administrative name for join-key
// construction: trims surrounding whitespace, strips diacritics, uppercases,
// and collapses internal whitespace runs to single spaces. Missing input maps
// to the empty string. Normalize is idempotent.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	s = strings.ToUpper(s)
	return strings.Join(strings.Fields(s), " ")
}
