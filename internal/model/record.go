package model

import "time"

// Query is a single screening request. Treat it as immutable once issued.
type Query struct {
	Name         string     `json:"name"`
	DeclaredType EntityType `json:"declared_type"`
}

// NewQuery builds a Query from boundary strings.
func NewQuery(name, declaredType string) (Query, error) {
	t, err := ParseDeclaredType(declaredType)
	if err != nil {
		return Query{}, err
	}
	return Query{Name: name, DeclaredType: t}, nil
}

// CandidateRecord is one normalized entry from a sanctions source.
type CandidateRecord struct {
	SourceID      string            `json:"source_id"`
	ExternalID    string            `json:"external_id"`
	Name          string            `json:"name"`
	Aliases       []string          `json:"aliases,omitempty"`
	EntityType    EntityType        `json:"entity_type"`
	RawAttributes map[string]string `json:"raw_attributes,omitempty"`
	FetchedAt     time.Time         `json:"fetched_at"`
}

// Names returns the primary name followed by every non-empty alias.
func (c CandidateRecord) Names() []string {
	names := make([]string, 0, 1+len(c.Aliases))
	if c.Name != "" {
		names = append(names, c.Name)
	}
	for _, a := range c.Aliases {
		if a != "" && a != c.Name {
			names = append(names, a)
		}
	}
	return names
}

// CacheEntry is the last successful record set of one source.
type CacheEntry struct {
	SourceID      string            `json:"source_id"`
	Records       []CandidateRecord `json:"records"`
	LastRefreshed time.Time         `json:"last_refreshed"`
	TTL           time.Duration     `json:"ttl"`
}

// IsStale reports whether the entry has outlived its TTL at now.
func (e *CacheEntry) IsStale(now time.Time) bool {
	return now.Sub(e.LastRefreshed) > e.TTL
}

// ExpiresAt is the instant after which the entry becomes stale.
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.LastRefreshed.Add(e.TTL)
}

// SourceHealth tracks recent fetch outcomes for one source.
type SourceHealth struct {
	SourceID            string     `json:"source_id"`
	LastError           *string    `json:"last_error"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	SuspendedUntil      *time.Time `json:"suspended_until,omitempty"`
}
