// Package stream fuses the Event Loader's typed per-family rows into
// one Unified Event Stream, sorted by spec.md §4.4's ordering key. The
// merge is modeled explicitly as a k-way merge over already-sorted
// per-family slices (container/heap) rather than a collect-then-sort
// over one big list, per spec.md §9's streaming note — the merge heap
// holds one cursor per family; the returned slice holds every event.
package stream

import (
	"container/heap"
	"sort"

	"github.com/alejandrodnm/polyledger/internal/catalog"
	"github.com/alejandrodnm/polyledger/internal/domain"
)

// Sources is the Event Loader's output: one already-(timestamp, block,
// log_index)-sorted slice per event family for a single wallet.
type Sources struct {
	Trades             []domain.TradeEvent
	Splits             []domain.SplitEvent
	Merges             []domain.MergeEvent
	Redemptions        []domain.RedemptionEvent
	AdapterConversions []domain.AdapterConversionEvent
	Transfers          []domain.TransferEvent
	Fees               []domain.FeeEvent
}

// ExchangeAddresses are the CLOB exchange contracts whose ERC-1155
// transfers, when the operator matches, are exchange-internal and
// dropped rather than replayed as gifts.
type ExchangeAddresses struct {
	Normal    string
	NegRisk   string
}

// Build fuses sources into the Unified Event Stream: bookkeeping-leg and
// exchange-internal and self transfers are dropped (spec.md §4.4), a
// synthetic resolution event is injected per resolved condition in the
// catalog, and everything is merged into one ascending sequence.
func Build(wallet string, src Sources, cat *catalog.Catalog, exch ExchangeAddresses) []domain.Event {
	bookkeepingTx := make(map[string]struct{})
	for _, e := range src.Splits {
		bookkeepingTx[e.TxHash] = struct{}{}
	}
	for _, e := range src.Merges {
		bookkeepingTx[e.TxHash] = struct{}{}
	}
	for _, e := range src.Redemptions {
		bookkeepingTx[e.TxHash] = struct{}{}
	}
	for _, e := range src.AdapterConversions {
		bookkeepingTx[e.TxHash] = struct{}{}
	}

	tradeTx := make(map[string]struct{}, len(src.Trades))
	for _, e := range src.Trades {
		tradeTx[e.TxHash] = struct{}{}
	}

	filtered := make([]domain.Event, 0, len(src.Transfers))
	for _, t := range src.Transfers {
		if _, ok := bookkeepingTx[t.TxHash]; ok {
			continue // token leg of a bookkeeping event, reconstructed by its handler
		}
		if _, isTrade := tradeTx[t.TxHash]; isTrade && (t.Operator == exch.Normal || t.Operator == exch.NegRisk) {
			continue // exchange-internal leg of a CLOB fill
		}
		if t.From == wallet && t.To == wallet {
			continue // self-transfer
		}
		filtered = append(filtered, t)
	}

	families := make([][]domain.Event, 0, 8)
	families = append(families, toEvents(src.Trades), filtered, toEvents(src.Splits), toEvents(src.Merges), toEvents(src.Redemptions), toEvents(src.AdapterConversions), toEvents(src.Fees))

	if cat != nil {
		var resolutions []domain.Event
		for _, cond := range cat.ResolvedConditions() {
			resolutions = append(resolutions, domain.NewResolutionEvent(cond.ConditionID, cond.ResolvedAt, cond.ResolvedBlock))
		}
		// ResolvedConditions ranges over a map; mergeAll requires every
		// family to already be sorted by OrderKey, so the synthetic
		// resolutions need an explicit sort before joining the merge.
		sort.Slice(resolutions, func(i, j int) bool { return resolutions[i].Key().Less(resolutions[j].Key()) })
		families = append(families, resolutions)
	}

	return mergeAll(families)
}

func toEvents[T domain.Event](in []T) []domain.Event {
	out := make([]domain.Event, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}

// cursor is one family's position in the k-way merge heap.
type cursor struct {
	events []domain.Event
	pos    int
}

type mergeHeap []*cursor

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return h[i].events[h[i].pos].Key().Less(h[j].events[h[j].pos].Key())
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*cursor)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeAll performs the k-way merge over already-sorted family slices.
func mergeAll(families [][]domain.Event) []domain.Event {
	h := make(mergeHeap, 0, len(families))
	total := 0
	for _, f := range families {
		if len(f) == 0 {
			continue
		}
		h = append(h, &cursor{events: f})
		total += len(f)
	}
	heap.Init(&h)

	out := make([]domain.Event, 0, total)
	for h.Len() > 0 {
		c := h[0]
		out = append(out, c.events[c.pos])
		c.pos++
		if c.pos < len(c.events) {
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}
	return out
}
