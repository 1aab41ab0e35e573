package screen

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sanction-watch/internal/cache"
	"github.com/sells-group/sanction-watch/internal/match"
	"github.com/sells-group/sanction-watch/internal/model"
	"github.com/sells-group/sanction-watch/internal/resilience"
	"github.com/sells-group/sanction-watch/internal/source"
)

// ErrNoSourceAvailable means every source failed and none had a cache entry.
// It is fatal for one query only.
var ErrNoSourceAvailable = eris.New("screen: no source available")

// ErrInvalidQuery wraps query validation failures.
var ErrInvalidQuery = eris.New("screen: invalid query")

// Screener runs checks against a fixed set of adapters sharing one cache.
// It is safe for concurrent use.
type Screener struct {
	cfg      Config
	cache    *cache.Store
	adapters []source.Adapter
	matcher  *match.Matcher
	health   *resilience.HealthTracker
	metrics  *Metrics
	rank     map[string]int
	locks    map[string]*sync.Mutex
}

// Option configures a Screener.
type Option func(*Screener)

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Screener) { s.metrics = m }
}

// WithHealthTracker shares a tracker, e.g. one with an injected clock.
func WithHealthTracker(h *resilience.HealthTracker) Option {
	return func(s *Screener) { s.health = h }
}

// New builds a Screener. Adapters are consulted in cfg.Priority order; a
// nil store keeps the cache in memory only.
func New(cfg Config, store *cache.Store, adapters []source.Adapter, opts ...Option) (*Screener, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = cache.NewStore(nil)
	}

	s := &Screener{
		cfg:     cfg,
		cache:   store,
		matcher: match.New(*cfg.Threshold),
		rank:    make(map[string]int, len(adapters)),
		locks:   make(map[string]*sync.Mutex, len(adapters)),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = resilience.NewHealthTracker(cfg.Health)
	}

	for _, id := range cfg.Priority {
		if _, dup := s.rank[id]; !dup {
			s.rank[id] = len(s.rank)
		}
	}
	for _, a := range adapters {
		if _, dup := s.locks[a.ID()]; dup {
			return nil, eris.Errorf("screen: adapter %q given twice", a.ID())
		}
		s.locks[a.ID()] = &sync.Mutex{}
		if _, ok := s.rank[a.ID()]; !ok {
			s.rank[a.ID()] = len(s.rank)
		}
	}

	s.adapters = append([]source.Adapter(nil), adapters...)
	sort.SliceStable(s.adapters, func(i, j int) bool {
		return s.rank[s.adapters[i].ID()] < s.rank[s.adapters[j].ID()]
	})
	return s, nil
}

// Sources returns the configured source IDs in priority order.
func (s *Screener) Sources() []string {
	ids := make([]string, len(s.adapters))
	for i, a := range s.adapters {
		ids[i] = a.ID()
	}
	return ids
}

// Config returns the effective configuration.
func (s *Screener) Config() Config {
	return s.cfg
}

func (s *Screener) rankOf(sourceID string) int {
	if r, ok := s.rank[sourceID]; ok {
		return r
	}
	return len(s.rank)
}

func validate(q model.Query) (model.Query, error) {
	q.Name = strings.TrimSpace(q.Name)
	if q.Name == "" {
		return q, eris.Wrap(ErrInvalidQuery, "empty name")
	}
	if q.DeclaredType == "" {
		q.DeclaredType = model.DeclaredAuto
	}
	if !q.DeclaredType.IsAuto() && (!q.DeclaredType.Valid() || q.DeclaredType == model.EntityUnknown) {
		return q, eris.Wrapf(ErrInvalidQuery, "declared type %q", q.DeclaredType)
	}
	return q, nil
}

// CheckSingle screens one query. When no source is available it returns an
// inconclusive result together with an error wrapping ErrNoSourceAvailable.
func (s *Screener) CheckSingle(ctx context.Context, q model.Query) (model.AggregatedResult, error) {
	return s.check(ctx, s.newRun(), q)
}

func (s *Screener) check(ctx context.Context, r *run, q model.Query) (model.AggregatedResult, error) {
	s.metrics.checkStarted()
	defer s.metrics.checkDone()

	start := time.Now()
	res, err := s.evaluate(ctx, r, q)
	s.metrics.observeCheck(string(res.OverallStatus), time.Since(start))
	return res, err
}

func (s *Screener) evaluate(ctx context.Context, r *run, q model.Query) (model.AggregatedResult, error) {
	res := model.AggregatedResult{
		Query:         q,
		Matches:       []model.AggregatedMatch{},
		OverallStatus: model.StatusInconclusive,
		FailedSources: []string{},
	}

	q, err := validate(q)
	if err != nil {
		res.Reason = err.Error()
		return res, err
	}
	res.Query = q
	if q.DeclaredType.IsAuto() {
		res.DetectedType = match.DetectEntityType(q.Name)
	}

	g, err := r.gather(ctx)
	if err != nil {
		res.Reason = "check cancelled: " + err.Error()
		return res, eris.Wrap(err, "screen: gather candidates")
	}
	if g.failed != nil {
		res.FailedSources = g.failed
	}
	res.StaleSources = g.stale

	if g.available == 0 {
		res.Reason = fmt.Sprintf("no source available: %d of %d sources failed and none had a cache entry",
			len(g.failed), len(s.adapters))
		return res, eris.Wrapf(ErrNoSourceAvailable, "query %q", q.Name)
	}

	matches := s.matcher.MatchAll(q, g.candidates)
	res.Matches = aggregate(matches, s.rankOf, s.cfg.MaxResults)
	res.OverallStatus = status(res.Matches, g.available)
	return res, nil
}

type batchIDKey struct{}

// WithBatchID tags ctx so CheckBulk logs under a caller-chosen batch ID.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

// BatchID returns the batch ID carried by ctx, if any.
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey{}).(string)
	return id
}

// CheckBulk screens every query and always returns len(queries) results in
// input order. A query that cannot be screened becomes an inconclusive
// result carrying the reason.
func (s *Screener) CheckBulk(ctx context.Context, queries []model.Query) []model.AggregatedResult {
	batchID := BatchID(ctx)
	if batchID == "" {
		batchID = uuid.NewString()
	}
	log := zap.L().With(zap.String("batch_id", batchID))
	start := time.Now()

	results := make([]model.AggregatedResult, len(queries))
	r := s.newRun()

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.ConcurrencyLimit)
	for i, q := range queries {
		g.Go(func() error {
			res, err := s.check(ctx, r, q)
			if err != nil {
				log.Debug("screen: query inconclusive", zap.Int("index", i), zap.Error(err))
				res.OverallStatus = model.StatusInconclusive
				if res.Reason == "" {
					res.Reason = err.Error()
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var flagged, inconclusive int
	for _, res := range results {
		switch res.OverallStatus {
		case model.StatusFlagged:
			flagged++
		case model.StatusInconclusive:
			inconclusive++
		}
	}
	log.Info("screen: bulk check complete",
		zap.Int("queries", len(queries)),
		zap.Int("flagged", flagged),
		zap.Int("inconclusive", inconclusive),
		zap.String("run_mode", string(s.cfg.RunMode)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results
}
