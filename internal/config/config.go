// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Search   SearchConfig   `mapstructure:"search"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Collect  CollectConfig  `mapstructure:"collect"`
	Brand    BrandConfig    `mapstructure:"brand"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SearchConfig configures the serper.dev search provider.
type SearchConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	QPS            float64 `mapstructure:"qps"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// FetchConfig governs the plain fetch and content thresholds.
type FetchConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RespectRobots     bool   `mapstructure:"respect_robots"`
	MinBodyRunes      int    `mapstructure:"min_body_runes"`
	BrandMinBodyRunes int    `mapstructure:"brand_min_body_runes"`
}

// HeadlessConfig configures the render fallback subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// LimiterConfig configures the per-origin politeness limiter.
type LimiterConfig struct {
	IntervalMs  int            `mapstructure:"interval_ms"`
	OverridesMs map[string]int `mapstructure:"overrides_ms"`
}

// CollectConfig sets the run's composition targets and concurrency.
type CollectConfig struct {
	Target             int     `mapstructure:"target"`
	BrandRatio         float64 `mapstructure:"brand_ratio"`
	DomainCapFraction  float64 `mapstructure:"domain_cap_fraction"`
	ExemptBrandDomains bool    `mapstructure:"exempt_brand_domains"`
	Workers            int     `mapstructure:"workers"`
	QueueCapacity      int     `mapstructure:"queue_capacity"`
	PoolMultiplier     int     `mapstructure:"pool_multiplier"`
}

// BrandConfig enumerates the brand's web properties for classification.
type BrandConfig struct {
	Domains       []string `mapstructure:"domains"`
	Hosts         []string `mapstructure:"hosts"`
	SocialHandles []string `mapstructure:"social_handles"`
	NewsHosts     []string `mapstructure:"news_hosts"`
}

// DBConfig controls access to the relational database. An empty DSN
// disables persistence.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StorageConfig sets the bucket for raw page archival. An empty bucket
// disables archival.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run event notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("search.qps", 2)
	v.SetDefault("search.timeout_seconds", 15)
	v.SetDefault("fetch.user_agent", "brandsignal-harvester/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.min_body_runes", 200)
	v.SetDefault("fetch.brand_min_body_runes", 80)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("limiter.interval_ms", 1000)
	v.SetDefault("collect.target", 20)
	v.SetDefault("collect.brand_ratio", 0.5)
	v.SetDefault("collect.domain_cap_fraction", 0.2)
	v.SetDefault("collect.exempt_brand_domains", true)
	v.SetDefault("collect.workers", 8)
	v.SetDefault("collect.pool_multiplier", 10)
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Search.APIKey == "" {
		return fmt.Errorf("search.api_key is required")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Collect.Target <= 0 {
		return fmt.Errorf("collect.target must be > 0")
	}
	if c.Collect.BrandRatio < 0 || c.Collect.BrandRatio > 1 {
		return fmt.Errorf("collect.brand_ratio must be in [0,1]")
	}
	if c.Collect.Workers <= 0 {
		return fmt.Errorf("collect.workers must be > 0")
	}
	if len(c.Brand.Domains) == 0 {
		return fmt.Errorf("brand.domains must name at least one core domain")
	}
	return nil
}

// FetchTimeout returns the plain fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// SearchTimeout returns the search API timeout as a duration.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

// NavTimeout returns the headless navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// LimiterInterval returns the default per-origin spacing.
func (c Config) LimiterInterval() time.Duration {
	return time.Duration(c.Limiter.IntervalMs) * time.Millisecond
}

// LimiterOverrides returns the per-origin spacing overrides.
func (c Config) LimiterOverrides() map[string]time.Duration {
	if len(c.Limiter.OverridesMs) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(c.Limiter.OverridesMs))
	for origin, ms := range c.Limiter.OverridesMs {
		out[origin] = time.Duration(ms) * time.Millisecond
	}
	return out
}
