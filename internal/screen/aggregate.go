package screen

import (
	"sort"

	"github.com/sells-group/sanction-watch/internal/model"
)

// aggregate dedupes matches on (source, external ID), keeping the best hit
// and every hit as provenance, then sorts and caps the result.
func aggregate(matches []model.MatchResult, rank func(sourceID string) int, maxResults int) []model.AggregatedMatch {
	type key struct{ source, external string }

	index := make(map[key]int, len(matches))
	out := make([]model.AggregatedMatch, 0, len(matches))
	for _, m := range matches {
		hit := model.SourceHit{
			SourceID:    m.SourceID,
			ExternalID:  m.Candidate.ExternalID,
			Score:       m.Score,
			MatchKind:   m.MatchKind,
			MatchedName: m.MatchedName,
		}
		k := key{m.SourceID, m.Candidate.ExternalID}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, model.AggregatedMatch{MatchResult: m, Provenance: []model.SourceHit{hit}})
			continue
		}
		agg := &out[i]
		agg.Provenance = append(agg.Provenance, hit)
		if better(m, agg.MatchResult) {
			agg.MatchResult = m
		}
	}

	for i := range out {
		sort.SliceStable(out[i].Provenance, func(a, b int) bool {
			pa, pb := out[i].Provenance[a], out[i].Provenance[b]
			if pa.Score != pb.Score {
				return pa.Score > pb.Score
			}
			return pa.MatchedName < pb.MatchedName
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ra, rb := rank(a.SourceID), rank(b.SourceID); ra != rb {
			return ra < rb
		}
		if a.Candidate.ExternalID != b.Candidate.ExternalID {
			return a.Candidate.ExternalID < b.Candidate.ExternalID
		}
		return a.MatchedName < b.MatchedName
	})

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// better orders two hits on the same entity: higher score, then stronger
// kind, then lexically smaller matched name.
func better(a, b model.MatchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if ka, kb := kindOrder(a.MatchKind), kindOrder(b.MatchKind); ka != kb {
		return ka < kb
	}
	return a.MatchedName < b.MatchedName
}

func kindOrder(k model.MatchKind) int {
	switch k {
	case model.MatchExact:
		return 0
	case model.MatchPartial:
		return 1
	default:
		return 2
	}
}

// status derives the verdict of one query.
func status(matches []model.AggregatedMatch, available int) model.OverallStatus {
	switch {
	case len(matches) > 0:
		return model.StatusFlagged
	case available > 0:
		return model.StatusClear
	default:
		return model.StatusInconclusive
	}
}
