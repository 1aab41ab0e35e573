package match

import (
	"strings"

	"github.com/agext/levenshtein"
)

// indelParams prices a substitution as one deletion plus one insertion, which
// turns the levenshtein similarity into 1 - indel/(len(a)+len(b)).
var indelParams = levenshtein.NewParams().SubCost(2)

// Similarity returns the fuzzy score of two normalized names in [0,1]. It is
// the better of the plain indel ratio and the ratio over token-sorted names,
// so reordered words ("DOE JOHN") score like their natural order.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	plain := levenshtein.Similarity(a, b, indelParams)
	sorted := levenshtein.Similarity(sortTokens(a), sortTokens(b), indelParams)
	if sorted > plain {
		return sorted
	}
	return plain
}

// Jaccard returns the token-set overlap of two normalized names.
func Jaccard(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}

	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// Contains reports whether one normalized name appears inside the other on
// word boundaries.
func Contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	pa, pb := " "+a+" ", " "+b+" "
	return strings.Contains(pa, pb) || strings.Contains(pb, pa)
}

func tokenSet(s string) map[string]struct{} {
	toks := Tokens(s)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}
