// Package config loads and validates run configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	Input   InputConfig   `mapstructure:"input"`
	Run     RunConfig     `mapstructure:"run"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DBConfig selects the outcome store backend. Path selects SQLite;
// a non-empty DSN selects Postgres instead.
type DBConfig struct {
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

// InputConfig locates the work sequence.
type InputConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// RunConfig carries the batch driver parameters.
type RunConfig struct {
	StartIndex      int     `mapstructure:"start_index"`
	EndIndex        int     `mapstructure:"end_index"`
	RetryFailed     bool    `mapstructure:"retry_failed"`
	RetryNoBranches bool    `mapstructure:"retry_no_branches"`
	ChecksPerSecond float64 `mapstructure:"checks_per_second"`
}

// FetchConfig governs the browser session and retry bound.
type FetchConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	UserAgent     string `mapstructure:"user_agent"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs int    `mapstructure:"settle_delay_ms"`
}

// ProxyConfig governs the proxy pool.
type ProxyConfig struct {
	SourceURL          string `mapstructure:"source_url"`
	RefreshIntervalMin int    `mapstructure:"refresh_interval_minutes"`
	ProbeTimeoutSec    int    `mapstructure:"probe_timeout_seconds"`
	Workers            int    `mapstructure:"workers"`
	MinEndpoints       int    `mapstructure:"min_endpoints"`
}

// MetricsConfig controls the optional observability listener.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRANCHSCAN")
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
	v.SetDefault("db.path", "companies.db")
	v.SetDefault("run.start_index", 0)
	v.SetDefault("run.end_index", -1)
	v.SetDefault("run.retry_failed", false)
	v.SetDefault("run.retry_no_branches", false)
	v.SetDefault("run.checks_per_second", 0.5)
	v.SetDefault("fetch.base_url", "https://opencorporates.com/companies/nl/")
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.nav_timeout_seconds", 45)
	v.SetDefault("fetch.settle_delay_ms", 2000)
	v.SetDefault("proxy.source_url", "https://free-proxy-list.net/")
	v.SetDefault("proxy.refresh_interval_minutes", 30)
	v.SetDefault("proxy.probe_timeout_seconds", 10)
	v.SetDefault("proxy.workers", 10)
	v.SetDefault("proxy.min_endpoints", 5)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DB.Path == "" && c.DB.DSN == "" {
		return fmt.Errorf("db.path or db.dsn must be set")
	}
	if c.Run.StartIndex < 0 {
		return fmt.Errorf("run.start_index must be >= 0")
	}
	if c.Run.EndIndex >= 0 && c.Run.EndIndex < c.Run.StartIndex {
		return fmt.Errorf("run.end_index must be >= run.start_index")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Proxy.Workers <= 0 {
		return fmt.Errorf("proxy.workers must be > 0")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr must be set when metrics are enabled")
	}
	return nil
}

// NavTimeout converts the fetch timeout to a duration.
func (c FetchConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// SettleDelay converts the settle delay to a duration.
func (c FetchConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// RefreshInterval converts the staleness bound to a duration.
func (c ProxyConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMin) * time.Minute
}

// ProbeTimeout converts the probe timeout to a duration.
func (c ProxyConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSec) * time.Second
}
