// Package config loads Ledger Engine configuration from a YAML file with
// environment-variable overrides, the same layered approach the scanner
// used: godotenv for local .env files, then explicit env-var overrides
// applied after YAML unmarshal.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full Ledger Engine configuration.
type Config struct {
	Replay  ReplayConfig  `yaml:"replay"`
	Store   StoreConfig   `yaml:"store"`
	Ranking RankingConfig `yaml:"ranking"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ReplayConfig controls a wallet replay's default window and snapshotting.
type ReplayConfig struct {
	SnapshotIntervalSeconds int64  `yaml:"snapshot_interval_seconds"`
	ExchangeNormal          string `yaml:"exchange_normal"`
	ExchangeNegRisk         string `yaml:"exchange_neg_risk"`
	BatchConcurrency        int    `yaml:"batch_concurrency"`
}

// StoreConfig selects and configures the ledger store adapter. SQLite
// always backs EventSource/ConditionSource (the local/dev store holding
// the loaded on-chain event history); Driver selects which adapter backs
// the LedgerSink the replay commits its output to.
type StoreConfig struct {
	Driver  string `yaml:"driver"`   // sqlite | postgres — selects the LedgerSink
	DSN     string `yaml:"dsn"`      // SQLite path, always opened for EventSource/ConditionSource
	SinkDSN string `yaml:"sink_dsn"` // Postgres connection string, used when driver = postgres
}

// RankingConfig configures the Redis-backed top-N wallet selector.
type RankingConfig struct {
	Addr string `yaml:"addr"`
	Key  string `yaml:"key"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// LogConfig controls slog's handler format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads path as YAML, applies a local .env if present, then
// environment overrides, then defaults for anything still unset.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

// SnapshotInterval returns the configured snapshot interval as a Duration.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Replay.SnapshotIntervalSeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEDGER_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("LEDGER_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("LEDGER_STORE_SINK_DSN"); v != "" {
		cfg.Store.SinkDSN = v
	}
	if v := os.Getenv("LEDGER_RANKING_ADDR"); v != "" {
		cfg.Ranking.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Replay.SnapshotIntervalSeconds <= 0 {
		cfg.Replay.SnapshotIntervalSeconds = 86400
	}
	if cfg.Replay.BatchConcurrency <= 0 {
		cfg.Replay.BatchConcurrency = 8
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "ledger.db"
	}
	if cfg.Ranking.Key == "" {
		cfg.Ranking.Key = "polyledger:wallet_ranking"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
