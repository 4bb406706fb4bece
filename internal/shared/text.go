package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldSearch lowercases s and strips diacritics so "Médico" matches "medico".
func FoldSearch(s string) string {
	// Transformers keep state; build a fresh chain per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(strings.TrimSpace(stripped))
}

// MatchesSearch reports whether text contains the folded query. An empty
// query matches everything.
func MatchesSearch(text, query string) bool {
	q := FoldSearch(query)
	if q == "" {
		return true
	}
	return strings.Contains(FoldSearch(text), q)
}
