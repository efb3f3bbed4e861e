// Package snapshot interleaves periodic wallet valuations into the same
// replay the Ledger Engine drives, rather than as a separate post-pass —
// so a snapshot at time T only ever sees the inventory and cumulative
// counters as they stood immediately before the first event at or after
// T, matching spec.md §4.6.
package snapshot

import (
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/inventory"
)

// Snapshotter tracks the next snapshot boundary and emits a Snapshot
// each time the replay crosses one.
type Snapshotter struct {
	Wallet          string
	IntervalSeconds int64
	StartTs         int64 // 0 means "align to the first event"
	EndTs           int64 // 0 means "no final flush"

	nextTs      int64
	lastEmitted int64
	initialized bool
}

// New constructs a Snapshotter for one wallet replay.
func New(wallet string, intervalSeconds, startTs, endTs int64) *Snapshotter {
	return &Snapshotter{Wallet: wallet, IntervalSeconds: intervalSeconds, StartTs: startTs, EndTs: endTs}
}

func (s *Snapshotter) initNext(firstEventTs int64) {
	if s.StartTs > 0 {
		boundary := s.StartTs
		if rem := boundary % s.IntervalSeconds; rem != 0 {
			boundary += s.IntervalSeconds - rem
		}
		s.nextTs = boundary
	} else {
		floor := (firstEventTs / s.IntervalSeconds) * s.IntervalSeconds
		s.nextTs = floor + s.IntervalSeconds
	}
	s.initialized = true
}

// Advance emits every snapshot boundary at or before ts, in order,
// before the caller processes the event at ts. Valuation uses the
// inventory's then-current state and the last-traded-price map as the
// pricing oracle.
func (s *Snapshotter) Advance(ts time.Time, inv *inventory.Inventory, lastPrice map[string]float64, realizedCum, cashflowCum float64) []domain.Snapshot {
	if s.IntervalSeconds <= 0 {
		return nil
	}
	t := ts.Unix()
	if !s.initialized {
		s.initNext(t)
	}
	var out []domain.Snapshot
	for s.nextTs <= t {
		out = append(out, s.emit(s.nextTs, inv, lastPrice, realizedCum, cashflowCum))
		s.lastEmitted = s.nextTs
		s.nextTs += s.IntervalSeconds
	}
	return out
}

// Flush emits one final snapshot at EndTs if it exceeds the last emitted
// boundary, per spec.md §4.6.
func (s *Snapshotter) Flush(inv *inventory.Inventory, lastPrice map[string]float64, realizedCum, cashflowCum float64) []domain.Snapshot {
	if s.EndTs <= 0 || s.EndTs <= s.lastEmitted {
		return nil
	}
	snap := s.emit(s.EndTs, inv, lastPrice, realizedCum, cashflowCum)
	s.lastEmitted = s.EndTs
	return []domain.Snapshot{snap}
}

func (s *Snapshotter) emit(at int64, inv *inventory.Inventory, lastPrice map[string]float64, realizedCum, cashflowCum float64) domain.Snapshot {
	openCost := inv.OpenCost(nil)
	openValue := inv.OpenValue(lastPrice, nil)
	return domain.Snapshot{
		Wallet:         s.Wallet,
		At:             at,
		RealizedCum:    realizedCum,
		Unrealized:     openValue - openCost,
		OpenCost:       openCost,
		OpenValue:      openValue,
		CashflowCum:    cashflowCum,
		OpenTokenCount: inv.OpenBucketCount(),
	}
}
