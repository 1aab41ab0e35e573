package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SQLite ---

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	p, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() }) //nolint:errcheck
	return p
}

func TestSQLite_SaveLoadDeleteList(t *testing.T) {
	p := newTestSQLite(t)
	ctx := context.Background()

	_, ok, err := p.Load(ctx, "ofac")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Save(ctx, "ofac", []byte("v1")))
	require.NoError(t, p.Save(ctx, "ofac", []byte("v2")))
	require.NoError(t, p.Save(ctx, "eu", []byte("e")))

	b, ok, err := p.Load(ctx, "ofac")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(b))

	keys, err := p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu", "ofac"}, keys)

	require.NoError(t, p.Delete(ctx, "ofac"))
	keys, err = p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu"}, keys)
}

func TestSQLite_StoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	p1, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, NewStore(p1).Put(ctx, "un", records("un", "JOHN DOE"), time.Hour))
	require.NoError(t, p1.Close())

	p2, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer p2.Close() //nolint:errcheck

	e, ok := NewStore(p2).Get(ctx, "un")
	require.True(t, ok)
	assert.Equal(t, "JOHN DOE", e.Records[0].Name)
}

// --- Postgres ---

func newMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgres(mock, ""), mock
}

func TestPostgres_Load_NotFound(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT payload FROM "sanctions_cache" WHERE source_id = \$1`).
		WithArgs("ofac").
		WillReturnError(pgx.ErrNoRows)

	b, ok, err := p.Load(context.Background(), "ofac")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, b)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Load_Found(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT payload FROM "sanctions_cache"`).
		WithArgs("uk").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow([]byte("blob")))

	b, ok, err := p.Load(context.Background(), "uk")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "blob", string(b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Load_Error(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT payload`).WithArgs("uk").WillReturnError(errors.New("conn reset"))

	_, _, err := p.Load(context.Background(), "uk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: load uk")
}

func TestPostgres_SaveUpsert(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO "sanctions_cache" .* ON CONFLICT \(source_id\) DO UPDATE`).
		WithArgs("eu", []byte("payload")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, p.Save(context.Background(), "eu", []byte("payload")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()
	p := NewPostgres(mock, "screening.cache")

	mock.ExpectQuery(`SELECT source_id FROM "screening"."cache" ORDER BY source_id`).
		WillReturnRows(pgxmock.NewRows([]string{"source_id"}).AddRow("eu").AddRow("ofac"))
	mock.ExpectExec(`DELETE FROM "screening"."cache" WHERE source_id = \$1`).
		WithArgs("ofac").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	keys, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"eu", "ofac"}, keys)
	require.NoError(t, p.Delete(context.Background(), "ofac"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "sanctions_cache"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, p.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Redis ---

// fakeRedis implements RedisClient over maps using go-redis result constructors.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	sets   map[string]map[string]bool
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, sets: map[string]map[string]bool{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = map[string]bool{}
	}
	for _, m := range members {
		f.sets[key][m.(string)] = true
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) SRem(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedis_SaveLoadDeleteList(t *testing.T) {
	f := newFakeRedis()
	p := NewRedis(f, "")
	ctx := context.Background()

	_, ok, err := p.Load(ctx, "ofac")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Save(ctx, "ofac", []byte("o")))
	require.NoError(t, p.Save(ctx, "eu", []byte("e")))
	assert.Equal(t, "o", f.values["sanction-watch:cache:ofac"])

	b, ok, err := p.Load(ctx, "ofac")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "o", string(b))

	keys, err := p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu", "ofac"}, keys, "sorted regardless of set order")

	require.NoError(t, p.Delete(ctx, "ofac"))
	keys, err = p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu"}, keys)
}

func TestRedis_ErrorsWrapped(t *testing.T) {
	f := newFakeRedis()
	f.err = errors.New("READONLY")
	p := NewRedis(f, "x:")

	_, _, err := p.Load(context.Background(), "un")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: load un")

	err = p.Save(context.Background(), "un", []byte("u"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: save un")
}

func TestRedis_BackedStore(t *testing.T) {
	ctx := context.Background()
	f := newFakeRedis()
	require.NoError(t, NewStore(NewRedis(f, "")).Put(ctx, "uk", records("uk", "ACME"), time.Hour))

	e, ok := NewStore(NewRedis(f, "")).Get(ctx, "uk")
	require.True(t, ok)
	assert.Equal(t, "ACME", e.Records[0].Name)
}

// --- Open ---

func TestParseDriver(t *testing.T) {
	d, err := ParseDriver("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, d)

	d, err = ParseDriver(" Redis ")
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, d)

	_, err = ParseDriver("mongo")
	assert.ErrorContains(t, err, "unknown driver")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	p, err := Open(ctx, Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, p)

	dir := t.TempDir()
	p, err = Open(ctx, Options{Driver: DriverSQLite, Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, p)
	require.NoError(t, p.Close())
	assert.FileExists(t, filepath.Join(dir, "cache.db"))

	_, err = Open(ctx, Options{Driver: DriverPostgres})
	assert.ErrorContains(t, err, "cache.database_url")

	_, err = Open(ctx, Options{Driver: DriverRedis})
	assert.ErrorContains(t, err, "cache.redis_url")

	_, err = Open(ctx, Options{Driver: DriverRedis, RedisURL: "://bad"})
	assert.ErrorContains(t, err, "redis: parse url")
}
