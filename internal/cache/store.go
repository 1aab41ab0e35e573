package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/model"
)

// snapshot is an immutable view of the cache. A nil entry records that the
// persister was consulted and held nothing.
type snapshot struct {
	entries map[string]*model.CacheEntry
}

// Store holds one CacheEntry per source. Readers see the latest committed
// snapshot without locking; writers are serialized per source.
type Store struct {
	persister Persister
	now       func() time.Time

	snap   atomic.Pointer[snapshot]
	swapMu sync.Mutex
	locks  sync.Map // source ID -> *sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for LastRefreshed and staleness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over p. A nil persister keeps entries in memory only.
func NewStore(p Persister, opts ...Option) *Store {
	if p == nil {
		p = NewMemory()
	}
	s := &Store{persister: p, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.snap.Store(&snapshot{entries: map[string]*model.CacheEntry{}})
	return s
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) lock(sourceID string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(sourceID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// swap publishes a new snapshot with sourceID set to e (nil for absent).
func (s *Store) swap(sourceID string, e *model.CacheEntry) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	cur := s.snap.Load().entries
	next := make(map[string]*model.CacheEntry, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[sourceID] = e
	s.snap.Store(&snapshot{entries: next})
}

// Get returns the entry for sourceID. The first Get of a key not yet in
// memory consults the persister and memoizes the outcome. The returned entry
// is shared and must not be modified.
func (s *Store) Get(ctx context.Context, sourceID string) (*model.CacheEntry, bool) {
	if e, known := s.snap.Load().entries[sourceID]; known {
		return e, e != nil
	}

	mu := s.lock(sourceID)
	mu.Lock()
	defer mu.Unlock()

	if e, known := s.snap.Load().entries[sourceID]; known {
		return e, e != nil
	}

	e, err := s.load(ctx, sourceID)
	if err != nil {
		zap.L().Warn("cache: load failed, treating as miss",
			zap.String("source", sourceID),
			zap.Error(err),
		)
		return nil, false
	}
	s.swap(sourceID, e)
	return e, e != nil
}

// load reads and verifies one persisted entry. Corrupted entries are deleted
// and reported as absent.
func (s *Store) load(ctx context.Context, sourceID string) (*model.CacheEntry, error) {
	data, ok, err := s.persister.Load(ctx, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: load %s", sourceID)
	}
	if !ok {
		return nil, nil
	}

	e, err := decodeEntry(sourceID, data)
	if errors.Is(err, ErrCorruption) {
		zap.L().Warn("cache: discarding corrupted entry",
			zap.String("source", sourceID),
			zap.Error(err),
		)
		if derr := s.persister.Delete(ctx, sourceID); derr != nil {
			zap.L().Warn("cache: delete corrupted entry failed", zap.String("source", sourceID), zap.Error(derr))
		}
		return nil, nil
	}
	return e, err
}

// Put replaces the entry for sourceID. Every record must carry sourceID.
// The in-memory entry is committed even when persisting fails; that error is
// returned so the caller can log it.
func (s *Store) Put(ctx context.Context, sourceID string, records []model.CandidateRecord, ttl time.Duration) error {
	for _, r := range records {
		if r.SourceID != sourceID {
			return eris.Errorf("cache: record %s belongs to %s, not %s", r.ExternalID, r.SourceID, sourceID)
		}
	}
	e := &model.CacheEntry{
		SourceID:      sourceID,
		Records:       records,
		LastRefreshed: s.now().UTC(),
		TTL:           ttl,
	}

	mu := s.lock(sourceID)
	mu.Lock()
	defer mu.Unlock()

	s.swap(sourceID, e)

	payload, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return eris.Wrapf(s.persister.Save(ctx, sourceID, payload), "cache: persist %s", sourceID)
}

// IsStale reports whether sourceID has no in-memory entry or has outlived
// its TTL on the store clock.
func (s *Store) IsStale(sourceID string) bool {
	e := s.snap.Load().entries[sourceID]
	return e == nil || e.IsStale(s.now())
}

// Delete removes sourceID from memory and the persister.
func (s *Store) Delete(ctx context.Context, sourceID string) error {
	mu := s.lock(sourceID)
	mu.Lock()
	defer mu.Unlock()

	s.swap(sourceID, nil)
	return eris.Wrapf(s.persister.Delete(ctx, sourceID), "cache: delete %s", sourceID)
}

// Clear removes every entry, including persisted ones never loaded.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns every present entry, memory and persister, sorted by source ID.
func (s *Store) Entries(ctx context.Context) ([]model.CacheEntry, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.CacheEntry, 0, len(keys))
	for _, k := range keys {
		if e, ok := s.Get(ctx, k); ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

// keys is the sorted union of in-memory and persisted source IDs.
func (s *Store) keys(ctx context.Context) ([]string, error) {
	persisted, err := s.persister.List(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "cache: list")
	}
	set := make(map[string]struct{}, len(persisted))
	for _, k := range persisted {
		set[k] = struct{}{}
	}
	for k, e := range s.snap.Load().entries {
		if e != nil {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the persister.
func (s *Store) Close() error {
	return s.persister.Close()
}
