package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	APIKey              string                  `yaml:"api_key" mapstructure:"api_key"`
	SimilarityThreshold float64                 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	SourcePriority      []string                `yaml:"source_priority" mapstructure:"source_priority"`
	ConcurrencyLimit    int                     `yaml:"concurrency_limit" mapstructure:"concurrency_limit"`
	RunMode             string                  `yaml:"run_mode" mapstructure:"run_mode"`
	SourcesFile         string                  `yaml:"sources_file" mapstructure:"sources_file"`
	Sources             map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
	Cache               CacheConfig             `yaml:"cache" mapstructure:"cache"`
	Screen              ScreenConfig            `yaml:"screen" mapstructure:"screen"`
	HTTP                HTTPConfig              `yaml:"http" mapstructure:"http"`
	Health              HealthConfig            `yaml:"health" mapstructure:"health"`
	Server              ServerConfig            `yaml:"server" mapstructure:"server"`
	Log                 LogConfig               `yaml:"log" mapstructure:"log"`
}

// SourceConfig overrides the defaults of one source.
type SourceConfig struct {
	URL      string        `yaml:"url" mapstructure:"url"`
	AliasURL string        `yaml:"alias_url" mapstructure:"alias_url"`
	Member   string        `yaml:"member" mapstructure:"member"`
	Sheet    string        `yaml:"sheet" mapstructure:"sheet"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Enabled  *bool         `yaml:"enabled" mapstructure:"enabled"`
}

// IsEnabled reports whether the source takes part in checks. Unset means yes.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// CacheConfig configures the cache store and its persistence backend.
type CacheConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	Dir         string        `yaml:"dir" mapstructure:"dir"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Table       string        `yaml:"table" mapstructure:"table"`
	RedisURL    string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix   string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	MaxConns    int32         `yaml:"max_conns" mapstructure:"max_conns"`
	TTL         time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ScreenConfig tunes result shaping and source consultation.
type ScreenConfig struct {
	MaxResults    int           `yaml:"max_results" mapstructure:"max_results"`
	SourceTimeout time.Duration `yaml:"source_timeout" mapstructure:"source_timeout"`
}

// HTTPConfig configures the feed downloader.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// HealthConfig configures source suspension after repeated failures.
type HealthConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SANCTIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api_key", "")
	v.SetDefault("similarity_threshold", 0.7)
	v.SetDefault("source_priority", []string{"opensanctions", "ofac", "uk", "eu", "un"})
	v.SetDefault("concurrency_limit", 4)
	v.SetDefault("run_mode", "union")
	v.SetDefault("sources_file", "")
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.dir", ".sanction-watch")
	v.SetDefault("cache.database_url", "")
	v.SetDefault("cache.table", "sanctions_cache")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "sanction-watch:cache:")
	v.SetDefault("cache.max_conns", 4)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("screen.max_results", 10)
	v.SetDefault("screen.source_timeout", "2m")
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.user_agent", "sanction-watch/1.0")
	v.SetDefault("http.requests_per_second", 1.0)
	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.cooldown", "5m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.SourcesFile != "" {
		catalog, err := LoadSources(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		cfg.Sources = mergeSources(cfg.Sources, catalog)
	}

	return &cfg, nil
}

type sourcesFile struct {
	Sources map[string]SourceConfig `yaml:"sources"`
}

// LoadSources reads a YAML sources catalog:
//
//	sources:
//	  ofac:
//	    url: https://mirror.example.com/sdn.csv
//	    ttl: 12h
//	  eu:
//	    enabled: false
func LoadSources(path string) (map[string]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read sources file %s", path)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse sources file %s", path)
	}

	out := make(map[string]SourceConfig, len(f.Sources))
	for id, sc := range f.Sources {
		out[strings.ToLower(strings.TrimSpace(id))] = sc
	}
	return out, nil
}

// mergeSources fills fields left empty in base from the catalog.
func mergeSources(base, catalog map[string]SourceConfig) map[string]SourceConfig {
	out := make(map[string]SourceConfig, len(base)+len(catalog))
	for id, sc := range catalog {
		out[id] = sc
	}
	for id, sc := range base {
		c := out[id]
		if sc.URL != "" {
			c.URL = sc.URL
		}
		if sc.AliasURL != "" {
			c.AliasURL = sc.AliasURL
		}
		if sc.Member != "" {
			c.Member = sc.Member
		}
		if sc.Sheet != "" {
			c.Sheet = sc.Sheet
		}
		if sc.TTL > 0 {
			c.TTL = sc.TTL
		}
		if sc.Timeout > 0 {
			c.Timeout = sc.Timeout
		}
		if sc.Enabled != nil {
			c.Enabled = sc.Enabled
		}
		out[id] = c
	}
	return out
}

// EnabledSources returns SourcePriority without the sources switched off.
func (c *Config) EnabledSources() []string {
	out := make([]string, 0, len(c.SourcePriority))
	for _, id := range c.SourcePriority {
		if c.Sources[id].IsEnabled() {
			out = append(out, id)
		}
	}
	return out
}

// Validate checks the settings a command needs. mode is "check" for the
// screening commands, "cache" for cache maintenance, or "serve" for the API.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "check", "cache", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, "similarity_threshold must be between 0 and 1")
	}
	if c.ConcurrencyLimit < 1 {
		errs = append(errs, "concurrency_limit must be > 0")
	}
	switch strings.ToLower(c.RunMode) {
	case "", "union", "fallback":
	default:
		errs = append(errs, fmt.Sprintf("run_mode %q must be union or fallback", c.RunMode))
	}
	if len(c.SourcePriority) == 0 {
		errs = append(errs, "source_priority must list at least one source")
	}
	seen := make(map[string]bool, len(c.SourcePriority))
	for _, id := range c.SourcePriority {
		if seen[id] {
			errs = append(errs, fmt.Sprintf("source_priority lists %q twice", id))
		}
		seen[id] = true
	}
	for id, sc := range c.Sources {
		if sc.TTL < 0 || sc.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("sources.%s durations must be >= 0", id))
		}
	}

	switch c.Cache.Driver {
	case "", "sqlite", "memory":
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			errs = append(errs, "cache.database_url is required for the postgres driver")
		}
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, "cache.redis_url is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q is not one of sqlite, postgres, redis, memory", c.Cache.Driver))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be > 0")
	}

	if mode != "cache" {
		if c.Screen.MaxResults < 0 {
			errs = append(errs, "screen.max_results must be >= 0")
		}
		if c.Screen.SourceTimeout <= 0 {
			errs = append(errs, "screen.source_timeout must be > 0")
		}
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, "http.timeout must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		errs = append(errs, "http.max_retries must be >= 0")
	}
	if c.HTTP.RequestsPerSecond <= 0 {
		errs = append(errs, "http.requests_per_second must be > 0")
	}
	if c.Health.FailureThreshold < 1 {
		errs = append(errs, "health.failure_threshold must be > 0")
	}
	if c.Health.Cooldown <= 0 {
		errs = append(errs, "health.cooldown must be > 0")
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, "server.port must be > 0 and <= 65535")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
