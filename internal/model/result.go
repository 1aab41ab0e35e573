package model

// MatchKind classifies how a candidate name matched the query.
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchPartial MatchKind = "partial"
	MatchFuzzy   MatchKind = "fuzzy"
)

// OverallStatus is the verdict for one query.
type OverallStatus string

const (
	StatusClear        OverallStatus = "clear"
	StatusFlagged      OverallStatus = "flagged"
	StatusInconclusive OverallStatus = "inconclusive"
)

// MatchResult is one scored candidate. Created by the matcher, never mutated.
type MatchResult struct {
	Query       Query           `json:"query"`
	Candidate   CandidateRecord `json:"candidate"`
	Score       float64         `json:"score"`
	MatchKind   MatchKind       `json:"match_kind"`
	SourceID    string          `json:"source_id"`
	MatchedName string          `json:"matched_name"`
}

// SourceHit records one source hit that was collapsed into an aggregated match.
type SourceHit struct {
	SourceID    string    `json:"source_id"`
	ExternalID  string    `json:"external_id"`
	Score       float64   `json:"score"`
	MatchKind   MatchKind `json:"match_kind"`
	MatchedName string    `json:"matched_name"`
}

// AggregatedMatch is a deduplicated match with every contributing hit.
type AggregatedMatch struct {
	MatchResult
	Provenance []SourceHit `json:"provenance"`
}

// AggregatedResult is the externally visible outcome of screening one query.
type AggregatedResult struct {
	Query         Query             `json:"query"`
	Matches       []AggregatedMatch `json:"matches"`
	OverallStatus OverallStatus     `json:"overall_status"`
	FailedSources []string          `json:"failed_sources"`
	StaleSources  []string          `json:"stale_sources,omitempty"`
	DetectedType  EntityType        `json:"detected_type,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}
