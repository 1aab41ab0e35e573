package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/cache"
	"github.com/sells-group/sanction-watch/internal/config"
	"github.com/sells-group/sanction-watch/internal/db"
	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/resilience"
	"github.com/sells-group/sanction-watch/internal/screen"
	"github.com/sells-group/sanction-watch/internal/source"
)

// screenEnv holds the screener and everything it owns, for the check, bulk,
// cache, sources and serve commands.
type screenEnv struct {
	Screener *screen.Screener
	Adapters []source.Adapter
	Store    *cache.Store
	Registry *prometheus.Registry
}

// Close releases the cache backend.
func (e *screenEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close cache store", zap.Error(err))
		}
	}
}

// initScreener validates cfg for mode, then builds fetchers, adapters, the
// cache store and the screener. Callers should defer env.Close().
func initScreener(ctx context.Context, c *config.Config, mode string) (*screenEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	adapters, err := source.Build(c.EnabledSources(), sourceSettings(c), newFetcher(c))
	if err != nil {
		return nil, eris.Wrap(err, "build sources")
	}
	if len(adapters) == 0 {
		return nil, eris.New("no sources enabled; set api_key or enable a legacy source")
	}

	p, err := cache.Open(ctx, cacheOptions(c))
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}
	store := cache.NewStore(p)

	reg := prometheus.NewRegistry()
	sc, err := screenConfig(c)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s, err := screen.New(sc, store, adapters, screen.WithMetrics(screen.NewMetrics(reg)))
	if err != nil {
		_ = store.Close()
		return nil, eris.Wrap(err, "build screener")
	}

	zap.L().Debug("screener ready",
		zap.Strings("sources", s.Sources()),
		zap.String("run_mode", string(sc.RunMode)),
		zap.String("cache_driver", c.Cache.Driver),
	)

	return &screenEnv{Screener: s, Adapters: adapters, Store: store, Registry: reg}, nil
}

func newFetcher(c *config.Config) *fetcher.Multi {
	h := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.HTTP.UserAgent,
		Timeout:           c.HTTP.Timeout,
		MaxRetries:        c.HTTP.MaxRetries,
		RequestsPerSecond: c.HTTP.RequestsPerSecond,
	})
	f := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: c.HTTP.Timeout})
	return fetcher.NewMulti(h, f)
}

func sourceSettings(c *config.Config) map[string]source.Settings {
	out := make(map[string]source.Settings, len(c.Sources)+1)
	for id, sc := range c.Sources {
		out[id] = source.Settings{
			URL:      sc.URL,
			AliasURL: sc.AliasURL,
			Member:   sc.Member,
			Sheet:    sc.Sheet,
		}
	}
	primary := out[string(source.KindOpenSanctions)]
	primary.APIKey = c.APIKey
	out[string(source.KindOpenSanctions)] = primary
	return out
}

func cacheOptions(c *config.Config) cache.Options {
	driver, _ := cache.ParseDriver(c.Cache.Driver)
	return cache.Options{
		Driver:      driver,
		Dir:         c.Cache.Dir,
		DatabaseURL: c.Cache.DatabaseURL,
		Table:       c.Cache.Table,
		RedisURL:    c.Cache.RedisURL,
		KeyPrefix:   c.Cache.KeyPrefix,
		Pool:        db.PoolConfig{MaxConns: c.Cache.MaxConns},
	}
}

func screenConfig(c *config.Config) (screen.Config, error) {
	mode, err := screen.ParseRunMode(c.RunMode)
	if err != nil {
		return screen.Config{}, err
	}

	sc := screen.Config{
		Threshold:        screen.Threshold(c.SimilarityThreshold),
		Priority:         c.SourcePriority,
		RunMode:          mode,
		DefaultTTL:       c.Cache.TTL,
		TTLs:             make(map[string]time.Duration),
		DefaultTimeout:   c.Screen.SourceTimeout,
		Timeouts:         make(map[string]time.Duration),
		ConcurrencyLimit: c.ConcurrencyLimit,
		MaxResults:       c.Screen.MaxResults,
		Health: resilience.HealthConfig{
			FailureThreshold: c.Health.FailureThreshold,
			Cooldown:         c.Health.Cooldown,
		},
	}
	for id, s := range c.Sources {
		if s.TTL > 0 {
			sc.TTLs[id] = s.TTL
		}
		if s.Timeout > 0 {
			sc.Timeouts[id] = s.Timeout
		}
	}
	return sc, nil
}
