// Package pnl implements the PnL Aggregator: a read-only, post-filter
// over a replay's realized sub-events and open lots. It never mutates
// engine state — spec.md §5 calls it out as read-only over immutable
// sub-event sequences.
package pnl

import (
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/inventory"
)

// Mode selects which sub-events and which open lots contribute to a
// period query, per spec.md §4.7.
type Mode int

const (
	// RealizedPeriodOnly includes sub-events realized in [S,E] whose
	// originating lot (if any) also opened in [S,E].
	RealizedPeriodOnly Mode = iota
	// RealizedWithHistory includes every sub-event realized in [S,E],
	// regardless of when its originating lot opened.
	RealizedWithHistory
	// PeriodPlusUnrealized is RealizedPeriodOnly plus unrealized PnL on
	// lots opened in [S,E].
	PeriodPlusUnrealized
	// Total is RealizedWithHistory plus unrealized PnL on every open lot.
	Total
)

// Period is an inclusive [Start, End] unix-second window.
type Period struct {
	Start int64
	End   int64
}

func (p Period) contains(t int64) bool { return t >= p.Start && t <= p.End }

// Result is the aggregate a period query returns.
type Result struct {
	ByKind     map[domain.SubEventKind]float64
	OpenCost   float64
	OpenValue  float64
	Unrealized float64
	Total      float64
}

// Aggregate answers a period PnL query over subEvents and, for the
// unrealized-inclusive modes, inv's open lots priced by prices.
func Aggregate(subEvents []domain.RealizedSubEvent, inv *inventory.Inventory, prices map[string]float64, period Period, mode Mode) Result {
	res := Result{ByKind: make(map[domain.SubEventKind]float64)}

	var realizedSum float64
	for _, s := range subEvents {
		if !period.contains(s.At) {
			continue
		}
		restrictOpenedAt := mode == RealizedPeriodOnly || mode == PeriodPlusUnrealized
		if restrictOpenedAt && s.OpenedAt != nil && !period.contains(*s.OpenedAt) {
			continue
		}
		res.ByKind[s.Kind] += s.RealizedPnL
		realizedSum += s.RealizedPnL
	}

	if mode == PeriodPlusUnrealized || mode == Total {
		var filter *inventory.TimeRange
		if mode == PeriodPlusUnrealized {
			filter = &inventory.TimeRange{From: time.Unix(period.Start, 0).UTC(), To: time.Unix(period.End, 0).UTC()}
		}
		res.OpenCost = inv.OpenCost(filter)
		res.OpenValue = inv.OpenValue(prices, filter)
		res.Unrealized = res.OpenValue - res.OpenCost
	}

	res.Total = realizedSum + res.Unrealized
	return res
}
