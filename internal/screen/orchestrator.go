package screen

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sanction-watch/internal/model"
	"github.com/sells-group/sanction-watch/internal/source"
)

const (
	servedFresh  = "fresh_cache"
	servedLive   = "live"
	servedStale  = "stale_cache"
	servedFailed = "failed"
)

// outcome is what consulting one source produced.
type outcome struct {
	sourceID string
	records  []model.CandidateRecord
	served   string
	err      *source.FetchError
}

// available reports whether the source contributed a record set.
func (o outcome) available() bool {
	return o.served != servedFailed
}

func (o outcome) failed() bool {
	return o.err != nil
}

// gathered is the candidate set of one check.
type gathered struct {
	candidates []model.CandidateRecord
	failed     []string
	stale      []string
	available  int
}

// run memoizes source outcomes so every query of one batch sees the same
// candidate set and each source is consulted at most once per batch.
type run struct {
	s     *Screener
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	once sync.Once
	out  outcome
}

func (s *Screener) newRun() *run {
	return &run{s: s, slots: make(map[string]*slot, len(s.adapters))}
}

func (r *run) outcome(ctx context.Context, a source.Adapter) outcome {
	r.mu.Lock()
	sl, ok := r.slots[a.ID()]
	if !ok {
		sl = &slot{}
		r.slots[a.ID()] = sl
	}
	r.mu.Unlock()

	sl.once.Do(func() { sl.out = r.s.consult(ctx, a, false) })
	return sl.out
}

// gather collects candidates according to the run mode. It only fails when
// ctx is done.
func (r *run) gather(ctx context.Context) (gathered, error) {
	adapters := r.s.adapters
	outs := make([]outcome, 0, len(adapters))

	switch r.s.cfg.RunMode {
	case RunFallback:
		for _, a := range adapters {
			o := r.outcome(ctx, a)
			outs = append(outs, o)
			if ctx.Err() != nil {
				break
			}
			// A source served stale after a failed fetch still contributes
			// its records, but the walk goes on to the next source.
			if !o.failed() && len(o.records) > 0 {
				zap.L().Debug("screen: fallback walk stopped",
					zap.String("source", o.sourceID),
					zap.String("served", o.served),
				)
				break
			}
		}

	default:
		outs = make([]outcome, len(adapters))
		var g errgroup.Group
		for i, a := range adapters {
			g.Go(func() error {
				outs[i] = r.outcome(ctx, a)
				return nil // a failing source never cancels its siblings
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return gathered{}, err
	}

	var out gathered
	for _, o := range outs {
		if o.failed() {
			out.failed = append(out.failed, o.sourceID)
		}
		if o.served == servedStale {
			out.stale = append(out.stale, o.sourceID)
		}
		if o.available() {
			out.available++
			out.candidates = append(out.candidates, o.records...)
		}
	}
	return out, nil
}

// consult returns the records of one source: the fresh cache entry if there
// is one, otherwise a live fetch, falling back to a stale entry on failure.
// Refreshes of one source are serialized across concurrent checks.
func (s *Screener) consult(ctx context.Context, a source.Adapter, force bool) outcome {
	id := a.ID()

	if !force {
		if e, ok := s.fresh(ctx, id); ok {
			s.metrics.served(id, servedFresh)
			return outcome{sourceID: id, records: e.Records, served: servedFresh}
		}
	}

	mu := s.locks[id]
	mu.Lock()
	defer mu.Unlock()

	// Another check may have refreshed the source while we waited.
	if !force {
		if e, ok := s.fresh(ctx, id); ok {
			s.metrics.served(id, servedFresh)
			return outcome{sourceID: id, records: e.Records, served: servedFresh}
		}
	}

	var fetchErr *source.FetchError
	if err := s.health.Allow(id); err != nil && !force {
		fetchErr = source.AsFetchError(id, err)
	} else {
		records, err := s.fetch(ctx, a)
		if err == nil {
			s.health.Record(id, nil)
			if perr := s.cache.Put(ctx, id, records, s.cfg.ttl(id)); perr != nil {
				zap.L().Warn("screen: cache write failed", zap.String("source", id), zap.Error(perr))
			}
			s.metrics.served(id, servedLive)
			return outcome{sourceID: id, records: records, served: servedLive}
		}
		fetchErr = source.AsFetchError(id, err)
		if ctx.Err() == nil {
			s.health.Record(id, fetchErr)
		}
	}

	if e, ok := s.cache.Get(ctx, id); ok {
		zap.L().Warn("screen: source failed, serving stale cache",
			zap.String("source", id),
			zap.String("reason", string(fetchErr.Reason)),
			zap.Time("last_refreshed", e.LastRefreshed),
			zap.Error(fetchErr),
		)
		s.metrics.served(id, servedStale)
		return outcome{sourceID: id, records: e.Records, served: servedStale, err: fetchErr}
	}

	zap.L().Warn("screen: source failed",
		zap.String("source", id),
		zap.String("reason", string(fetchErr.Reason)),
		zap.Error(fetchErr),
	)
	s.metrics.served(id, servedFailed)
	return outcome{sourceID: id, served: servedFailed, err: fetchErr}
}

func (s *Screener) fresh(ctx context.Context, id string) (*model.CacheEntry, bool) {
	e, ok := s.cache.Get(ctx, id)
	if !ok || e.IsStale(s.cache.Now()) {
		return nil, false
	}
	return e, true
}

// fetch runs one live fetch under the source's timeout.
func (s *Screener) fetch(ctx context.Context, a source.Adapter) ([]model.CandidateRecord, error) {
	id := a.ID()
	fctx, cancel := context.WithTimeout(ctx, s.cfg.timeout(id))
	defer cancel()

	start := time.Now()
	records, err := a.Fetch(fctx)
	elapsed := time.Since(start)
	s.metrics.observeFetch(id, err, elapsed)

	if err != nil {
		if fctx.Err() != nil && ctx.Err() == nil {
			err = source.NewFetchError(id, source.ReasonTimeout, fctx.Err())
		}
		return nil, err
	}
	for i := range records {
		records[i].SourceID = id
	}
	zap.L().Info("screen: source fetched",
		zap.String("source", id),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", elapsed),
	)
	return records, nil
}
