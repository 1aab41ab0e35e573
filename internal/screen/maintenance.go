package screen

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sanction-watch/internal/model"
)

// RefreshResult reports what Refresh did for one source.
type RefreshResult struct {
	SourceID string        `json:"source_id"`
	Served   string        `json:"served"`
	Records  int           `json:"records"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
}

// Refresh brings every source's cache entry up to date. Fresh entries are
// left alone unless force is set; force also bypasses health suspension.
func (s *Screener) Refresh(ctx context.Context, force bool) []RefreshResult {
	results := make([]RefreshResult, len(s.adapters))

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.ConcurrencyLimit)
	for i, a := range s.adapters {
		g.Go(func() error {
			start := time.Now()
			o := s.consult(ctx, a, force)
			results[i] = RefreshResult{
				SourceID: o.sourceID,
				Served:   o.served,
				Records:  len(o.records),
				Elapsed:  time.Since(start),
			}
			if o.err != nil {
				results[i].Error = o.err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Health returns SourceHealth for every configured source in priority order.
func (s *Screener) Health() []model.SourceHealth {
	out := make([]model.SourceHealth, len(s.adapters))
	for i, a := range s.adapters {
		out[i] = s.health.Get(a.ID())
	}
	return out
}

// CacheStatus describes the cache entry of one source.
type CacheStatus struct {
	SourceID      string        `json:"source_id"`
	Present       bool          `json:"present"`
	Stale         bool          `json:"stale"`
	Records       int           `json:"records"`
	LastRefreshed *time.Time    `json:"last_refreshed,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	TTL           time.Duration `json:"ttl"`
}

// CacheStatus returns the cache state of every configured source in priority order.
func (s *Screener) CacheStatus(ctx context.Context) []CacheStatus {
	now := s.cache.Now()
	out := make([]CacheStatus, len(s.adapters))
	for i, a := range s.adapters {
		id := a.ID()
		st := CacheStatus{SourceID: id, Stale: true, TTL: s.cfg.ttl(id)}
		if e, ok := s.cache.Get(ctx, id); ok {
			refreshed, expires := e.LastRefreshed, e.ExpiresAt()
			st.Present = true
			st.Stale = e.IsStale(now)
			st.Records = len(e.Records)
			st.LastRefreshed = &refreshed
			st.ExpiresAt = &expires
			st.TTL = e.TTL
		}
		out[i] = st
	}
	return out
}

// ClearCache drops every cache entry, persisted ones included.
func (s *Screener) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}
