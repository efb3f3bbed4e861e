// Command batchreplay runs the Ledger Engine across many wallets with
// bounded concurrency, either from an explicit wallet list file or from
// a Redis-backed top-N ranking.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyledger/config"
	"github.com/alejandrodnm/polyledger/internal/adapters/ranking"
	"github.com/alejandrodnm/polyledger/internal/adapters/store"
	"github.com/alejandrodnm/polyledger/internal/batch"
	"github.com/alejandrodnm/polyledger/internal/metrics"
	"github.com/alejandrodnm/polyledger/internal/ports"
	"github.com/alejandrodnm/polyledger/internal/replay"
	"github.com/alejandrodnm/polyledger/internal/stream"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	walletsFile := flag.String("wallets-file", "", "newline-delimited file of wallet addresses")
	topN := flag.Int("top-n", 0, "replay the top N wallets from the ranking store instead of a file")
	concurrency := flag.Int("concurrency", 0, "max concurrent wallet replays (0 = use config default)")
	start := flag.Int64("start", 0, "start of the replay window (unix seconds)")
	end := flag.Int64("end", 0, "end of the replay window (unix seconds)")
	dryRun := flag.Bool("dry-run", false, "compute replays without writing to the store")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
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

	var wallets []string
	if *walletsFile != "" {
		wallets, err = readWallets(*walletsFile)
		if err != nil {
			slog.Error("failed to read wallets file", "err", err, "path", *walletsFile)
			os.Exit(1)
		}
	}

	var rankingSrc *ranking.Redis
	if len(wallets) == 0 && *topN > 0 {
		rankingSrc = ranking.New(cfg.Ranking.Addr, cfg.Ranking.Key)
		defer rankingSrc.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if rankingSrc != nil {
		wallets, err = batch.SelectWallets(ctx, nil, rankingSrc, *topN)
		if err != nil {
			slog.Error("failed to select wallets", "err", err)
			os.Exit(1)
		}
	}
	if len(wallets) == 0 {
		slog.Error("no wallets to replay: provide -wallets-file or -top-n")
		os.Exit(2)
	}

	conc := *concurrency
	if conc <= 0 {
		conc = cfg.Replay.BatchConcurrency
	}

	driver := replay.New(sqliteStore, sqliteStore, sink, slog.Default())
	outcomes, err := batch.Run(ctx, driver, batch.Params{
		Wallets:                 wallets,
		Concurrency:             conc,
		StartTs:                 *start,
		EndTs:                   *end,
		SnapshotIntervalSeconds: cfg.Replay.SnapshotIntervalSeconds,
		DryRun:                  *dryRun,
		ExchangeAddresses: stream.ExchangeAddresses{
			Normal:  cfg.Replay.ExchangeNormal,
			NegRisk: cfg.Replay.ExchangeNegRisk,
		},
	})
	if err != nil {
		slog.Error("batch run failed", "err", err)
		os.Exit(1)
	}

	succeeded, failed := batch.Summarize(outcomes)
	slog.Info("batch replay complete", "succeeded", len(succeeded), "failed", len(failed))
	printSummaryTable(outcomes)
	if len(failed) > 0 {
		os.Exit(1)
	}
}

func printSummaryTable(outcomes []replay.Outcome) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Wallet", "Entries", "Snapshots", "Duration", "Status")
	for _, o := range outcomes {
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		table.Append(o.Wallet, strconv.Itoa(o.EntriesWritten), strconv.Itoa(o.Snapshots), o.Duration.Round(time.Millisecond).String(), status)
	}
	table.Render()
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

func readWallets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var wallets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		wallets = append(wallets, line)
	}
	return wallets, scanner.Err()
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
