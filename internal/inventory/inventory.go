// Package inventory implements the per-wallet FIFO position book: one
// bucket of Lots per outcome-token identifier, consumed head-first.
//
// A bucket is a slice used as a deque with a head offset, the arena
// pattern spec.md §9 calls for ("avoid per-lot heap allocation on hot
// paths by pooling") — appends are amortized O(1) and consumed lots are
// dropped from the head without shifting the tail.
package inventory

import (
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/fixedpoint"
)

// bucket is one outcome token's FIFO lot queue.
type bucket struct {
	lots []domain.Lot
	head int
}

func (b *bucket) totalQuantity() float64 {
	var total float64
	for i := b.head; i < len(b.lots); i++ {
		total += b.lots[i].Quantity
	}
	return total
}

// compact drops fully-consumed lots from the front once they pile up,
// so a long-lived bucket's backing array doesn't grow unbounded.
func (b *bucket) compact() {
	if b.head == 0 || b.head < len(b.lots)/2 {
		return
	}
	b.lots = append(b.lots[:0], b.lots[b.head:]...)
	b.head = 0
}

// Inventory is one wallet's complete position book, keyed by
// outcome-token identifier. It has no shared mutability across wallets:
// each replay constructs its own Inventory, populates it during event
// replay, and discards it at the end.
type Inventory struct {
	buckets map[string]*bucket
}

// New returns an empty Inventory.
func New() *Inventory {
	return &Inventory{buckets: make(map[string]*bucket)}
}

func (inv *Inventory) bucketFor(tokenID string) *bucket {
	b, ok := inv.buckets[tokenID]
	if !ok {
		b = &bucket{}
		inv.buckets[tokenID] = b
	}
	return b
}

// Add appends a lot to the tail of tokenID's bucket. No merging of
// adjacent lots — FIFO identity is preserved even across lots opened at
// the same instant.
func (inv *Inventory) Add(tokenID string, qty, unitCost float64, openedAt time.Time) {
	if qty <= 0 {
		return
	}
	b := inv.bucketFor(tokenID)
	b.lots = append(b.lots, domain.Lot{Quantity: qty, UnitCost: unitCost, OpenedAt: openedAt})
}

// Consume pops up to qty from the head of tokenID's bucket, returning
// the accumulated cost basis and one Consumption per lot touched.
// Fractional lot consumption is allowed; a lot is removed once its
// residual quantity drops below fixedpoint.Epsilon. Consuming against an
// empty (or exhausted) bucket is accepted with zero cost basis — a
// protocol anomaly per spec.md §7, not an error.
func (inv *Inventory) Consume(tokenID string, qty float64) (costBasis float64, consumptions []domain.Consumption) {
	b := inv.bucketFor(tokenID)
	remaining := qty

	for remaining > fixedpoint.Epsilon && b.head < len(b.lots) {
		lot := &b.lots[b.head]
		take := remaining
		if take > lot.Quantity {
			take = lot.Quantity
		}
		cost := take * lot.UnitCost
		costBasis += cost
		consumptions = append(consumptions, domain.Consumption{Quantity: take, UnitCost: lot.UnitCost, OpenedAt: lot.OpenedAt})

		lot.Quantity -= take
		remaining -= take

		if lot.Quantity < fixedpoint.Epsilon {
			b.head++
		}
	}
	b.compact()
	return costBasis, consumptions
}

// TotalQuantity returns the sum of quantity across all open lots for
// tokenID.
func (inv *Inventory) TotalQuantity(tokenID string) float64 {
	b, ok := inv.buckets[tokenID]
	if !ok {
		return 0
	}
	return b.totalQuantity()
}

// WeightedAvgUnitCost returns the quantity-weighted average unit cost of
// tokenID's open lots, or 0 if the bucket is empty.
func (inv *Inventory) WeightedAvgUnitCost(tokenID string) float64 {
	b, ok := inv.buckets[tokenID]
	if !ok {
		return 0
	}
	var qty, cost float64
	for i := b.head; i < len(b.lots); i++ {
		qty += b.lots[i].Quantity
		cost += b.lots[i].CostBasis()
	}
	return fixedpoint.SafeDiv(cost, qty)
}

// OpenPosition is a snapshot of one token bucket's aggregate state.
type OpenPosition struct {
	TokenID  string
	Quantity float64
	Cost     float64
}

// OpenPositions yields every non-empty bucket.
func (inv *Inventory) OpenPositions() []OpenPosition {
	var out []OpenPosition
	for tokenID, b := range inv.buckets {
		var qty, cost float64
		for i := b.head; i < len(b.lots); i++ {
			qty += b.lots[i].Quantity
			cost += b.lots[i].CostBasis()
		}
		if qty > fixedpoint.Epsilon {
			out = append(out, OpenPosition{TokenID: tokenID, Quantity: qty, Cost: cost})
		}
	}
	return out
}

// TimeRange restricts OpenCost/OpenValue to lots opened inside [From, To].
// A zero value on either bound means unbounded on that side.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (r TimeRange) includes(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// OpenCost sums cost basis over open lots, optionally restricted to a
// time range on OpenedAt.
func (inv *Inventory) OpenCost(filter *TimeRange) float64 {
	var total float64
	for _, b := range inv.buckets {
		for i := b.head; i < len(b.lots); i++ {
			lot := b.lots[i]
			if filter != nil && !filter.includes(lot.OpenedAt) {
				continue
			}
			total += lot.CostBasis()
		}
	}
	return total
}

// OpenValue sums quantity * price over open lots, using prices as the
// per-token valuation oracle, optionally restricted to a time range on
// OpenedAt.
func (inv *Inventory) OpenValue(prices map[string]float64, filter *TimeRange) float64 {
	var total float64
	for tokenID, b := range inv.buckets {
		price := prices[tokenID]
		for i := b.head; i < len(b.lots); i++ {
			lot := b.lots[i]
			if filter != nil && !filter.includes(lot.OpenedAt) {
				continue
			}
			total += lot.Quantity * price
		}
	}
	return total
}

// OpenBucketCount returns the number of token buckets with a
// non-negligible open quantity, used by Snapshot.OpenTokenCount.
func (inv *Inventory) OpenBucketCount() int {
	count := 0
	for _, b := range inv.buckets {
		if b.totalQuantity() > fixedpoint.Epsilon {
			count++
		}
	}
	return count
}
