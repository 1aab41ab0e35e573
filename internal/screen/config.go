// Package screen checks queries against every configured sanctions source
// and aggregates the matches into one result per query.
package screen

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sanction-watch/internal/match"
	"github.com/sells-group/sanction-watch/internal/resilience"
)

// RunMode decides how sources are consulted for a check.
type RunMode string

const (
	// RunUnion consults every source concurrently and merges all matches.
	RunUnion RunMode = "union"
	// RunFallback walks sources in priority order and stops at the first
	// one that yields candidates.
	RunFallback RunMode = "fallback"
)

// ParseRunMode validates a configured mode. Empty means union.
func ParseRunMode(s string) (RunMode, error) {
	switch m := RunMode(strings.ToLower(strings.TrimSpace(s))); m {
	case RunUnion, RunFallback:
		return m, nil
	case "":
		return RunUnion, nil
	}
	return "", eris.Errorf("screen: unknown run mode %q", s)
}

const (
	DefaultTTL              = 24 * time.Hour
	DefaultSourceTimeout    = 2 * time.Minute
	DefaultConcurrencyLimit = 4
)

// Config controls a Screener.
type Config struct {
	// Threshold is the minimum similarity for a match, inclusive. Nil means
	// match.DefaultThreshold; an explicit 0 accepts every eligible candidate.
	Threshold *float64
	// Priority ranks source IDs for ordering; adapters missing from it rank
	// after listed ones in the order they were given.
	Priority []string
	RunMode  RunMode

	DefaultTTL time.Duration
	TTLs       map[string]time.Duration

	DefaultTimeout time.Duration
	Timeouts       map[string]time.Duration

	ConcurrencyLimit int
	// MaxResults caps matches per query after sorting. 0 means unlimited.
	MaxResults int

	Health resilience.HealthConfig
}

func (c Config) withDefaults() (Config, error) {
	t := match.DefaultThreshold
	if c.Threshold != nil {
		t = *c.Threshold
	}
	if t < 0 || t > 1 {
		return c, eris.Errorf("screen: threshold %v outside [0,1]", t)
	}
	c.Threshold = Threshold(t)
	mode, err := ParseRunMode(string(c.RunMode))
	if err != nil {
		return c, err
	}
	c.RunMode = mode
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultSourceTimeout
	}
	if c.ConcurrencyLimit <= 0 {
		c.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if c.MaxResults < 0 {
		c.MaxResults = 0
	}
	return c, nil
}

// Threshold returns a pointer to t for Config.Threshold.
func Threshold(t float64) *float64 {
	return &t
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:        Threshold(match.DefaultThreshold),
		RunMode:          RunUnion,
		DefaultTTL:       DefaultTTL,
		DefaultTimeout:   DefaultSourceTimeout,
		ConcurrencyLimit: DefaultConcurrencyLimit,
		MaxResults:       10,
		Health:           resilience.DefaultHealthConfig(),
	}
}

func (c Config) ttl(sourceID string) time.Duration {
	if d, ok := c.TTLs[sourceID]; ok && d > 0 {
		return d
	}
	return c.DefaultTTL
}

func (c Config) timeout(sourceID string) time.Duration {
	if d, ok := c.Timeouts[sourceID]; ok && d > 0 {
		return d
	}
	return c.DefaultTimeout
}
