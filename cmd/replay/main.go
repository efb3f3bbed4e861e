// Command replay runs the Ledger Engine over a single wallet's on-chain
// event history and writes the resulting ledger entries and valuation
// snapshots to the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polyledger/config"
	"github.com/alejandrodnm/polyledger/internal/adapters/store"
	"github.com/alejandrodnm/polyledger/internal/ports"
	"github.com/alejandrodnm/polyledger/internal/replay"
	"github.com/alejandrodnm/polyledger/internal/stream"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	wallet := flag.String("wallet", "", "wallet address to replay (required)")
	interval := flag.Int64("interval", 0, "snapshot interval in seconds (0 = use config)")
	start := flag.Int64("start", 0, "start of the replay window (unix seconds, 0 = unbounded)")
	end := flag.Int64("end", 0, "end of the replay window (unix seconds, 0 = unbounded)")
	dryRun := flag.Bool("dry-run", false, "compute the replay without writing to the store")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *interval > 0 {
		cfg.Replay.SnapshotIntervalSeconds = *interval
	}
	setupLogger(cfg.Log)

	if *wallet == "" {
		slog.Error("-wallet is required")
		os.Exit(2)
	}

	sqliteStore, err := store.OpenSQLite(cfg.Store.DSN)
	if err != nil {
		slog.Error("failed to open store", "err", err, "dsn", cfg.Store.DSN)
		os.Exit(1)
	}
	defer sqliteStore.Close()

	sink, closeSink, err := openSink(cfg.Store, sqliteStore)
	if err != nil {
		slog.Error("failed to open sink", "err", err, "driver", cfg.Store.Driver)
		os.Exit(1)
	}
	defer closeSink()

	driver := replay.New(sqliteStore, sqliteStore, sink, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	outcome := driver.Run(ctx, replay.Request{
		Wallet:                  *wallet,
		StartTs:                 *start,
		EndTs:                   *end,
		SnapshotIntervalSeconds: cfg.Replay.SnapshotIntervalSeconds,
		DryRun:                  *dryRun,
		ExchangeAddresses: stream.ExchangeAddresses{
			Normal:  cfg.Replay.ExchangeNormal,
			NegRisk: cfg.Replay.ExchangeNegRisk,
		},
	})

	if outcome.Err != nil {
		slog.Error("replay failed", "wallet", *wallet, "err", outcome.Err)
		os.Exit(1)
	}

	slog.Info("replay complete", "wallet", *wallet, "entries", outcome.EntriesWritten, "snapshots", outcome.Snapshots, "duration", outcome.Duration)
}

// openSink selects the LedgerSink adapter per cfg.Driver. sqliteStore is
// the already-open EventSource/ConditionSource instance, reused as the
// sink for the "sqlite" driver; "postgres" opens a separate
// store.OpenPostgres connection instead. The returned close func is
// always safe to call.
func openSink(cfg config.StoreConfig, sqliteStore *store.SQLite) (ports.LedgerSink, func(), error) {
	switch cfg.Driver {
	case "", "sqlite":
		return sqliteStore, func() {}, nil
	case "postgres":
		sink, err := store.OpenPostgres(cfg.SinkDSN)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { sink.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
