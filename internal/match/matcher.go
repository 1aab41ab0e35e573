package match

import (
	"github.com/sells-group/sanction-watch/internal/model"
)

// DefaultThreshold is the minimum fuzzy score accepted when none is configured.
const DefaultThreshold = 0.7

// Matcher classifies candidates against a query. It holds no mutable state
// and is safe for concurrent use.
type Matcher struct {
	threshold float64
}

// New creates a Matcher. A threshold outside [0,1] falls back to DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold < 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Score compares two raw names and returns the score and the kind of match.
// The caller decides acceptance; see Accepts.
func (m *Matcher) Score(query, candidate string) (float64, model.MatchKind) {
	a, b := Normalize(query), Normalize(candidate)
	if a == "" || b == "" {
		return 0, model.MatchFuzzy
	}
	if a == b {
		return 1, model.MatchExact
	}

	sim := Similarity(a, b)
	if Contains(a, b) {
		if j := Jaccard(a, b); j >= m.threshold {
			return max(j, sim), model.MatchPartial
		}
	}
	return sim, model.MatchFuzzy
}

// Accepts reports whether a scored pair counts as a match. Exact and partial
// matches always count; fuzzy ones need score >= threshold.
func (m *Matcher) Accepts(score float64, kind model.MatchKind) bool {
	switch kind {
	case model.MatchExact, model.MatchPartial:
		return true
	default:
		return score >= m.threshold
	}
}

// Eligible reports whether a candidate survives the query's type filter.
func Eligible(q model.Query, c model.CandidateRecord) bool {
	if q.DeclaredType.IsAuto() {
		return true
	}
	return c.EntityType == q.DeclaredType
}

// Match scores one candidate across its primary name and aliases. The best
// scoring name wins; on a tie the earlier name (primary first) is kept.
func (m *Matcher) Match(q model.Query, c model.CandidateRecord) (model.MatchResult, bool) {
	if !Eligible(q, c) {
		return model.MatchResult{}, false
	}

	var (
		best     float64
		bestKind model.MatchKind
		bestName string
		found    bool
	)
	for _, name := range c.Names() {
		score, kind := m.Score(q.Name, name)
		if !m.Accepts(score, kind) {
			continue
		}
		if !found || score > best || (score == best && kindRank(kind) < kindRank(bestKind)) {
			best, bestKind, bestName, found = score, kind, name, true
		}
	}
	if !found {
		return model.MatchResult{}, false
	}

	return model.MatchResult{
		Query:       q,
		Candidate:   c,
		Score:       best,
		MatchKind:   bestKind,
		SourceID:    c.SourceID,
		MatchedName: bestName,
	}, true
}

// MatchAll scores every candidate and returns the accepted matches in
// candidate order.
func (m *Matcher) MatchAll(q model.Query, candidates []model.CandidateRecord) []model.MatchResult {
	var out []model.MatchResult
	for _, c := range candidates {
		if r, ok := m.Match(q, c); ok {
			out = append(out, r)
		}
	}
	return out
}

func kindRank(k model.MatchKind) int {
	switch k {
	case model.MatchExact:
		return 0
	case model.MatchPartial:
		return 1
	default:
		return 2
	}
}
