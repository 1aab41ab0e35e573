package cache

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/db"
)

// Driver names a Persister backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverRedis    Driver = "redis"
	DriverMemory   Driver = "memory"
)

// sqliteFile is the database file created under Options.Dir.
const sqliteFile = "cache.db"

// Options selects and configures a Persister.
type Options struct {
	Driver      Driver
	Dir         string
	DatabaseURL string
	Table       string
	RedisURL    string
	KeyPrefix   string
	Pool        db.PoolConfig
}

// ParseDriver validates a configured driver name.
func ParseDriver(s string) (Driver, error) {
	d := Driver(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DriverSQLite, DriverPostgres, DriverRedis, DriverMemory:
		return d, nil
	case "":
		return DriverSQLite, nil
	}
	return "", eris.Errorf("cache: unknown driver %q", s)
}

// Open connects the persister selected by opts.
func Open(ctx context.Context, opts Options) (Persister, error) {
	driver, err := ParseDriver(string(opts.Driver))
	if err != nil {
		return nil, err
	}

	switch driver {
	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, eris.New("cache: postgres driver needs cache.database_url")
		}
		pool, err := db.Connect(ctx, opts.DatabaseURL, opts.Pool)
		if err != nil {
			return nil, err
		}
		p := NewPostgres(pool, opts.Table)
		if err := p.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		zap.L().Debug("cache: using postgres", zap.String("table", p.table))
		return p, nil

	case DriverRedis:
		if opts.RedisURL == "" {
			return nil, eris.New("cache: redis driver needs cache.redis_url")
		}
		client, err := DialRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("cache: using redis", zap.String("prefix", opts.KeyPrefix))
		return NewRedis(client, opts.KeyPrefix), nil

	case DriverMemory:
		return NewMemory(), nil

	default:
		path := filepath.Join(opts.Dir, sqliteFile)
		zap.L().Debug("cache: using sqlite", zap.String("path", path))
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
