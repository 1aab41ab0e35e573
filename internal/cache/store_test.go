package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sanction-watch/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingPersister wraps Memory and can fail saves.
type countingPersister struct {
	*Memory
	loads   atomic.Int32
	saveErr error
}

func (p *countingPersister) Load(ctx context.Context, id string) ([]byte, bool, error) {
	p.loads.Add(1)
	return p.Memory.Load(ctx, id)
}

func (p *countingPersister) Save(ctx context.Context, id string, b []byte) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	return p.Memory.Save(ctx, id, b)
}

func records(sourceID string, names ...string) []model.CandidateRecord {
	out := make([]model.CandidateRecord, len(names))
	for i, n := range names {
		out[i] = model.CandidateRecord{
			SourceID:   sourceID,
			ExternalID: fmt.Sprintf("%s-%d", sourceID, i+1),
			Name:       n,
			EntityType: model.EntityVessel,
		}
	}
	return out
}

func TestStore_PutGet(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(nil, WithClock(clock.Now))
	ctx := context.Background()

	_, ok := s.Get(ctx, "ofac")
	assert.False(t, ok)
	assert.True(t, s.IsStale("ofac"), "missing entry is stale")

	require.NoError(t, s.Put(ctx, "ofac", records("ofac", "OCEAN STAR"), time.Hour))

	e, ok := s.Get(ctx, "ofac")
	require.True(t, ok)
	assert.Equal(t, "ofac", e.SourceID)
	assert.Equal(t, clock.Now(), e.LastRefreshed)
	assert.Equal(t, time.Hour, e.TTL)
	assert.Len(t, e.Records, 1)
	assert.False(t, s.IsStale("ofac"))
}

func TestStore_StalenessBoundary(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(nil, WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "un", records("un", "JOHN DOE"), time.Hour))

	clock.Advance(time.Hour)
	assert.False(t, s.IsStale("un"), "age equal to ttl is still fresh")

	clock.Advance(time.Nanosecond)
	assert.True(t, s.IsStale("un"))

	_, ok := s.Get(ctx, "un")
	assert.True(t, ok, "stale entries stay readable")
}

func TestStore_PutRejectsForeignRecords(t *testing.T) {
	s := NewStore(nil)
	err := s.Put(context.Background(), "ofac", records("uk", "ACME"), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "belongs to uk")

	_, ok := s.Get(context.Background(), "ofac")
	assert.False(t, ok)
}

func TestStore_PutReplacesEntry(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "eu", records("eu", "A", "B"), time.Hour))
	require.NoError(t, s.Put(ctx, "eu", records("eu", "C"), 2*time.Hour))

	e, ok := s.Get(ctx, "eu")
	require.True(t, ok)
	require.Len(t, e.Records, 1)
	assert.Equal(t, "C", e.Records[0].Name)
	assert.Equal(t, 2*time.Hour, e.TTL)
}

func TestStore_ColdStartFromPersister(t *testing.T) {
	p := &countingPersister{Memory: NewMemory()}
	ctx := context.Background()

	first := NewStore(p)
	require.NoError(t, first.Put(ctx, "uk", records("uk", "ACME TRADING"), time.Hour))

	second := NewStore(p)
	assert.True(t, second.IsStale("uk"), "not loaded yet")

	e, ok := second.Get(ctx, "uk")
	require.True(t, ok)
	assert.Equal(t, "ACME TRADING", e.Records[0].Name)
	assert.Equal(t, int32(1), p.loads.Load())

	_, _ = second.Get(ctx, "uk")
	_, _ = second.Get(ctx, "un")
	_, _ = second.Get(ctx, "un")
	assert.Equal(t, int32(2), p.loads.Load(), "hits and misses are memoized")
}

func TestStore_CorruptionIsMissAndDeleted(t *testing.T) {
	ctx := context.Background()

	valid, err := encodeEntry(&model.CacheEntry{SourceID: "ofac", Records: records("ofac", "X"), TTL: time.Hour})
	require.NoError(t, err)
	tampered := bytes.Replace(valid, []byte(`"X"`), []byte(`"Z"`), 1)
	require.NotEqual(t, valid, tampered)

	foreign, err := encodeEntry(&model.CacheEntry{SourceID: "ofac", Records: records("un", "Y"), TTL: time.Hour})
	require.NoError(t, err)

	otherKey, err := encodeEntry(&model.CacheEntry{SourceID: "un", TTL: time.Hour})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"garbage", []byte("not json")},
		{"truncated", valid[:len(valid)/2]},
		{"tampered", tampered},
		{"foreign records", foreign},
		{"wrong key", otherKey},
		{"unknown version", []byte(`{"v":9,"sha256":"","entry":{}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMemory()
			require.NoError(t, p.Save(ctx, "ofac", tt.payload))

			s := NewStore(p)
			_, ok := s.Get(ctx, "ofac")
			assert.False(t, ok)

			_, present, _ := p.Load(ctx, "ofac")
			assert.False(t, present, "corrupted entry is deleted")
		})
	}
}

func TestDecodeEntry_CorruptionSentinel(t *testing.T) {
	_, err := decodeEntry("ofac", []byte("{"))
	assert.True(t, errors.Is(err, ErrCorruption))

	good, err := encodeEntry(&model.CacheEntry{SourceID: "ofac", Records: records("ofac", "X")})
	require.NoError(t, err)
	e, err := decodeEntry("ofac", good)
	require.NoError(t, err)
	assert.Equal(t, "X", e.Records[0].Name)
}

func TestStore_PersistFailureKeepsMemory(t *testing.T) {
	p := &countingPersister{Memory: NewMemory(), saveErr: errors.New("disk full")}
	s := NewStore(p)
	ctx := context.Background()

	err := s.Put(ctx, "ofac", records("ofac", "A"), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, ok := s.Get(ctx, "ofac")
	assert.True(t, ok)
}

func TestStore_DeleteClearEntries(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()

	seed := NewStore(p)
	require.NoError(t, seed.Put(ctx, "un", records("un", "U"), time.Hour))

	s := NewStore(p)
	require.NoError(t, s.Put(ctx, "ofac", records("ofac", "O"), time.Hour))
	require.NoError(t, s.Put(ctx, "eu", records("eu", "E"), time.Hour))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3, "persisted entries count even before first Get")
	assert.Equal(t, "eu", entries[0].SourceID)
	assert.Equal(t, "ofac", entries[1].SourceID)
	assert.Equal(t, "un", entries[2].SourceID)

	require.NoError(t, s.Delete(ctx, "ofac"))
	_, ok := s.Get(ctx, "ofac")
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	entries, err = s.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	keys, err := p.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	ids := []string{"opensanctions", "ofac", "uk", "eu", "un"}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.Put(ctx, id, records(id, fmt.Sprintf("N%d", i)), time.Hour)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if e, ok := s.Get(ctx, id); ok {
					assert.Equal(t, id, e.SourceID)
					assert.Len(t, e.Records, 1)
				}
				_ = s.IsStale(id)
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		e, ok := s.Get(ctx, id)
		require.True(t, ok)
		assert.Equal(t, "N49", e.Records[0].Name)
	}
}
