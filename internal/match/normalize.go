// Package match scores query names against sanctions candidates.
package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var multiSpaceRe = regexp.MustCompile(`\s+`)

// separators become spaces; every other non-alphanumeric rune is dropped,
// so "M/V" and "M.V." both fold to "MV".
var separators = strings.NewReplacer(
	"&", " AND ",
	"-", " ",
	"_", " ",
	",", " ",
	";", " ",
	":", " ",
	"(", " ",
	")", " ",
)

// foldDiacritics strips combining marks after compatibility decomposition.
// A fresh transformer is built per call since transform chains hold state.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize folds a name into the canonical form used for comparison:
//  1. Unicode compatibility decomposition with diacritics removed
//  2. Upper case
//  3. Separators (&, -, comma, brackets) replaced by spaces, other punctuation dropped
//  4. Whitespace collapsed and trimmed
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(foldDiacritics(name))
	name = separators.Replace(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(b.String(), " "))
}

// Tokens splits a normalized name into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// sortTokens returns the tokens of a normalized name in lexical order.
func sortTokens(normalized string) string {
	toks := Tokens(normalized)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}
