// Package ports defines the boundary between the ledger engine and its
// external collaborators: the columnar store the Event Loader reads
// from, and the two output sinks a replay writes to. Concrete
// implementations live under internal/adapters.
package ports

import (
	"context"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/stream"
)

// EventSource is the Event Loader's read side: one method per event
// family in spec.md §6's table, each returning rows for wallet already
// sorted by (timestamp, block, log_index) and scoped to endTs when it is
// non-zero.
type EventSource interface {
	Trades(ctx context.Context, wallet string, endTs int64) ([]domain.TradeEvent, error)
	Splits(ctx context.Context, wallet string, endTs int64) ([]domain.SplitEvent, error)
	Merges(ctx context.Context, wallet string, endTs int64) ([]domain.MergeEvent, error)
	Redemptions(ctx context.Context, wallet string, endTs int64) ([]domain.RedemptionEvent, error)
	AdapterConversions(ctx context.Context, wallet string, endTs int64) ([]domain.AdapterConversionEvent, error)
	Transfers(ctx context.Context, wallet string, endTs int64) ([]domain.TransferEvent, error)
	FeeEvents(ctx context.Context, wallet string, endTs int64) ([]domain.FeeEvent, error)
}

// ConditionSource is the Condition Catalog's read side.
type ConditionSource interface {
	Conditions(ctx context.Context) ([]domain.Condition, error)
	// QuestionCounts maps a negative-risk market ID to its question
	// count. The adapter-conversion fallback consults this table first and
	// uses the event's own question count only for markets missing from it
	// (spec.md §9's open question on staleness).
	QuestionCounts(ctx context.Context) (map[string]int, error)
}

// LedgerSink is a replay's write side: a scoped delete over [start,end]
// followed by inserting the produced rows, per spec.md §6.
type LedgerSink interface {
	DeleteRange(ctx context.Context, wallet string, start, end int64) error
	InsertLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error
	InsertSnapshots(ctx context.Context, snapshots []domain.Snapshot) error
}

// RankingSource backs the CLI's top-N wallet selector, reading from a
// pre-aggregated ranking table (spec.md §6).
type RankingSource interface {
	TopWallets(ctx context.Context, n int) ([]string, error)
}

// LoadSources bulk-fetches every event family for one wallet from src
// and assembles a stream.Sources, ready for stream.Build. Loading is
// entirely bulk up front — there are no suspension points once a replay
// starts (spec.md §5).
func LoadSources(ctx context.Context, src EventSource, wallet string, endTs int64) (stream.Sources, error) {
	trades, err := src.Trades(ctx, wallet, endTs)
	if err != nil {
		return stream.Sources{}, err
	}
	splits, err := src.Splits(ctx, wallet, endTs)
	if err != nil {
		return stream.Sources{}, err
	}
	merges, err := src.Merges(ctx, wallet, endTs)
	if err != nil {
		return stream.Sources{}, err
	}
	redemptions, err := src.Redemptions(ctx, wallet, endTs)
	if err != nil {
		return stream.Sources{}, err
	}
	adapterConversions, err := src.AdapterConversions(ctx, wallet, endTs)
	if err != nil {
		return stream.Sources{}, err
	}
	transfers, err := src.Transfers(ctx, wallet, endTs)
	if err != nil {
		return stream.Sources{}, err
	}
	fees, err := src.FeeEvents(ctx, wallet, endTs)
	if err != nil {
		return stream.Sources{}, err
	}
	return stream.Sources{
		Trades: trades, Splits: splits, Merges: merges, Redemptions: redemptions,
		AdapterConversions: adapterConversions, Transfers: transfers, Fees: fees,
	}, nil
}
