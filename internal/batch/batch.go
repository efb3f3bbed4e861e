// Package batch implements the Batch Driver: runs the Wallet Replay
// Driver across many wallets with bounded concurrency, collecting a
// per-wallet outcome without aborting the run on an individual failure.
//
// Concurrency is bounded with golang.org/x/sync/semaphore rather than an
// unbounded goroutine-per-wallet fan-out (the scanner's worker pool used
// a fixed-size channel instead; a semaphore gives the same bound without
// pre-sizing a work channel to the wallet count), per spec.md §9's
// memory-bound note.
package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/alejandrodnm/polyledger/internal/metrics"
	"github.com/alejandrodnm/polyledger/internal/ports"
	"github.com/alejandrodnm/polyledger/internal/replay"
	"github.com/alejandrodnm/polyledger/internal/stream"
)

// Params configures one batch run.
type Params struct {
	Wallets                 []string
	Concurrency             int
	StartTs, EndTs          int64
	SnapshotIntervalSeconds int64
	DryRun                  bool
	ExchangeAddresses       stream.ExchangeAddresses
}

// Run executes replay.Driver.Run for every wallet in params.Wallets,
// bounded to params.Concurrency concurrent replays. A per-wallet failure
// is recorded in that wallet's Outcome and the batch continues, per
// spec.md §7. Run returns an error only when acquiring a concurrency slot
// fails because ctx is done; the remaining wallets are then not started.
func Run(ctx context.Context, driver *replay.Driver, params Params) ([]replay.Outcome, error) {
	if params.Concurrency <= 0 {
		params.Concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(params.Concurrency))

	outcomes := make([]replay.Outcome, len(params.Wallets))
	var wg sync.WaitGroup

	for i, wallet := range params.Wallets {
		if err := sem.Acquire(ctx, 1); err != nil {
			return outcomes, fmt.Errorf("batch.Run: acquire semaphore: %w", err)
		}
		wg.Add(1)
		metrics.BatchInFlight.Inc()

		go func(i int, wallet string) {
			defer wg.Done()
			defer sem.Release(1)
			defer metrics.BatchInFlight.Dec()

			outcomes[i] = driver.Run(ctx, replay.Request{
				Wallet:                  wallet,
				StartTs:                 params.StartTs,
				EndTs:                   params.EndTs,
				SnapshotIntervalSeconds: params.SnapshotIntervalSeconds,
				DryRun:                  params.DryRun,
				ExchangeAddresses:       params.ExchangeAddresses,
			})
		}(i, wallet)
	}

	wg.Wait()
	return outcomes, nil
}

// SelectWallets resolves the batch's wallet list: an explicit list takes
// precedence, otherwise the top n wallets are pulled from src.
func SelectWallets(ctx context.Context, explicit []string, src ports.RankingSource, topN int) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	if src == nil || topN <= 0 {
		return nil, nil
	}
	wallets, err := src.TopWallets(ctx, topN)
	if err != nil {
		return nil, fmt.Errorf("batch.SelectWallets: %w", err)
	}
	return wallets, nil
}

// Summarize splits outcomes into succeeded and failed wallet addresses,
// for the CLI's exit-code decision.
func Summarize(outcomes []replay.Outcome) (succeeded, failed []string) {
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o.Wallet)
			continue
		}
		succeeded = append(succeeded, o.Wallet)
	}
	return succeeded, failed
}
