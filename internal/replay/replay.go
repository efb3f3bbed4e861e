// Package replay implements the Wallet Replay Driver: the orchestration
// step that wires ports.EventSource/ConditionSource into catalog+stream,
// runs the Ledger Engine and Snapshotter over the result, and — unless
// dry-run — commits the output through ports.LedgerSink as a scoped delete
// followed by the inserts (separate sink calls, not one transaction).
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyledger/internal/catalog"
	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/ledgerengine"
	"github.com/alejandrodnm/polyledger/internal/metrics"
	"github.com/alejandrodnm/polyledger/internal/ports"
	"github.com/alejandrodnm/polyledger/internal/snapshot"
	"github.com/alejandrodnm/polyledger/internal/stream"
)

// Request is one wallet replay's parameters.
type Request struct {
	Wallet                  string
	StartTs                 int64 // 0 means unbounded
	EndTs                   int64 // 0 means unbounded
	SnapshotIntervalSeconds int64
	DryRun                  bool
	ExchangeAddresses       stream.ExchangeAddresses
}

// Driver wires the ports together to run one wallet at a time.
type Driver struct {
	Events     ports.EventSource
	Conditions ports.ConditionSource
	Sink       ports.LedgerSink
	Log        *slog.Logger
}

// New constructs a Driver. log may be nil, in which case slog.Default is used.
func New(events ports.EventSource, conditions ports.ConditionSource, sink ports.LedgerSink, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{Events: events, Conditions: conditions, Sink: sink, Log: log}
}

// Outcome is the per-wallet result the batch driver aggregates.
type Outcome struct {
	Wallet         string
	EntriesWritten int
	Snapshots      int
	Duration       time.Duration
	Err            error
}

// Run executes one wallet replay per spec.md §4.9's five steps: load,
// build catalog+stream, run the engine, and — unless req.DryRun — commit
// through the sink. A failure at any step aborts before any write.
func (d *Driver) Run(ctx context.Context, req Request) Outcome {
	start := time.Now()
	outcome := Outcome{Wallet: req.Wallet}

	result, err := d.build(ctx, req)
	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.Err = fmt.Errorf("replay.Run: wallet %s: %w", req.Wallet, err)
		metrics.ObserveReplay("error", outcome.Duration)
		d.Log.Error("wallet replay failed", "wallet", req.Wallet, "err", err)
		return outcome
	}
	outcome.EntriesWritten = len(result.Entries)
	outcome.Snapshots = len(result.Snapshots)

	if req.DryRun {
		metrics.ObserveReplay("dry_run", outcome.Duration)
		d.Log.Info("wallet replay dry-run complete", "wallet", req.Wallet, "entries", outcome.EntriesWritten, "snapshots", outcome.Snapshots)
		return outcome
	}

	if err := d.commit(ctx, req, result); err != nil {
		outcome.Err = fmt.Errorf("replay.Run: wallet %s: commit: %w", req.Wallet, err)
		metrics.ObserveReplay("error", outcome.Duration)
		return outcome
	}

	metrics.ObserveReplay("ok", outcome.Duration)
	metrics.LedgerEntriesWritten.Add(float64(outcome.EntriesWritten))
	metrics.SnapshotsWritten.Add(float64(outcome.Snapshots))
	d.Log.Info("wallet replay committed", "wallet", req.Wallet, "entries", outcome.EntriesWritten, "snapshots", outcome.Snapshots)
	return outcome
}

// build performs steps 1-4 of spec.md §4.9: it never touches the sink, so
// a caller can inspect the result before deciding whether to commit.
func (d *Driver) build(ctx context.Context, req Request) (ledgerengine.Result, error) {
	src, err := ports.LoadSources(ctx, d.Events, req.Wallet, req.EndTs)
	if err != nil {
		return ledgerengine.Result{}, fmt.Errorf("load events: %w", err)
	}
	conds, err := d.Conditions.Conditions(ctx)
	if err != nil {
		return ledgerengine.Result{}, fmt.Errorf("load conditions: %w", err)
	}
	questionCounts, err := d.Conditions.QuestionCounts(ctx)
	if err != nil {
		return ledgerengine.Result{}, fmt.Errorf("load question counts: %w", err)
	}

	cat := catalog.New(conds, questionCounts, req.EndTs)
	events := stream.Build(req.Wallet, src, cat, req.ExchangeAddresses)
	for _, e := range events {
		metrics.EventsProcessed.WithLabelValues(kindLabel(e.Kind())).Inc()
	}

	var snap *snapshot.Snapshotter
	if req.SnapshotIntervalSeconds > 0 {
		snap = snapshot.New(req.Wallet, req.SnapshotIntervalSeconds, req.StartTs, req.EndTs)
	}

	return ledgerengine.Run(req.Wallet, events, cat, snap), nil
}

// commit issues the scoped delete over both output ranges and then
// inserts the produced rows, per spec.md §6's idempotent write semantics.
func (d *Driver) commit(ctx context.Context, req Request, result ledgerengine.Result) error {
	start, end := req.StartTs, req.EndTs
	if end == 0 {
		end = latestTimestamp(result)
	}
	if err := d.Sink.DeleteRange(ctx, req.Wallet, start, end); err != nil {
		return fmt.Errorf("delete range: %w", err)
	}
	if err := d.Sink.InsertLedgerEntries(ctx, result.Entries); err != nil {
		return fmt.Errorf("insert ledger entries: %w", err)
	}
	if err := d.Sink.InsertSnapshots(ctx, result.Snapshots); err != nil {
		return fmt.Errorf("insert snapshots: %w", err)
	}
	return nil
}

func latestTimestamp(result ledgerengine.Result) int64 {
	var max int64
	for _, e := range result.Entries {
		if e.Timestamp > max {
			max = e.Timestamp
		}
	}
	for _, s := range result.Snapshots {
		if s.At > max {
			max = s.At
		}
	}
	return max
}

func kindLabel(k domain.EventKind) string {
	switch k {
	case domain.KindTrade:
		return "trade"
	case domain.KindSplit:
		return "split"
	case domain.KindMerge:
		return "merge"
	case domain.KindRedemption:
		return "redemption"
	case domain.KindAdapterConversion:
		return "adapter_conversion"
	case domain.KindTransfer:
		return "transfer"
	case domain.KindFee:
		return "fee"
	case domain.KindResolution:
		return "resolution"
	default:
		return "unknown"
	}
}
