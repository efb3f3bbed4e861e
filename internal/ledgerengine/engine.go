// Package ledgerengine is the deterministic, replayable state machine
// spec.md §4.5 describes: it consumes one wallet's unified event stream
// in order, mutates a Position Inventory, and emits ledger entries plus
// realized sub-events. It is single-threaded per wallet by construction
// (spec.md §5) — there are no suspension points inside Run, so a replay
// is pure in-memory computation once its inputs are loaded.
package ledgerengine

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/polyledger/internal/catalog"
	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/fixedpoint"
	"github.com/alejandrodnm/polyledger/internal/inventory"
	"github.com/alejandrodnm/polyledger/internal/snapshot"
	"github.com/alejandrodnm/polyledger/internal/tokenid"
)

// stableIDNamespace anchors the deterministic UUIDv5 ledger entries are
// keyed by, so re-running a replay over the same range produces
// byte-identical stable_ids (spec.md §6's delete-then-insert
// idempotence relies on this).
var stableIDNamespace = uuid.MustParse("6f6d0e0e-6d1a-4c1e-9c9e-6a8b6e6f6c6d")

// Engine is the per-wallet ledger state machine. It owns no external
// resources: everything it touches (Inventory, last-traded-price map,
// accumulated entries) is discarded when the replay ends.
type Engine struct {
	Wallet    string
	Inventory *inventory.Inventory
	Catalog   *catalog.Catalog

	lastPrice   map[string]float64
	entries     []domain.LedgerEntry
	subEvents   []domain.RealizedSubEvent
	realizedCum float64
	cashflowCum float64
}

// New constructs an Engine with an empty Inventory, ready to replay one
// wallet's unified event stream against cat.
func New(wallet string, cat *catalog.Catalog) *Engine {
	return &Engine{
		Wallet:    wallet,
		Inventory: inventory.New(),
		Catalog:   cat,
		lastPrice: make(map[string]float64),
	}
}

// Result is everything a wallet replay produces.
type Result struct {
	Entries   []domain.LedgerEntry
	SubEvents []domain.RealizedSubEvent
	Snapshots []domain.Snapshot
}

// Run drives events through the engine in order, interleaving snap's
// snapshot boundaries between events exactly as spec.md §4.6 requires.
// snap may be nil to skip snapshotting entirely.
func Run(wallet string, events []domain.Event, cat *catalog.Catalog, snap *snapshot.Snapshotter) Result {
	eng := New(wallet, cat)
	var snapshots []domain.Snapshot

	for _, e := range events {
		if snap != nil {
			ts := time.Unix(e.Key().TimestampSec, 0).UTC()
			snapshots = append(snapshots, snap.Advance(ts, eng.Inventory, eng.lastPrice, eng.realizedCum, eng.cashflowCum)...)
		}
		eng.dispatch(e)
	}
	if snap != nil {
		snapshots = append(snapshots, snap.Flush(eng.Inventory, eng.lastPrice, eng.realizedCum, eng.cashflowCum)...)
	}

	return Result{Entries: eng.entries, SubEvents: eng.subEvents, Snapshots: snapshots}
}

func (e *Engine) dispatch(evt domain.Event) {
	switch v := evt.(type) {
	case domain.TradeEvent:
		e.handleTrade(v)
	case domain.SplitEvent:
		e.handleSplit(v)
	case domain.MergeEvent:
		e.handleMerge(v)
	case domain.RedemptionEvent:
		e.handleRedemption(v)
	case domain.AdapterConversionEvent:
		e.handleAdapterConversion(v)
	case domain.TransferEvent:
		e.handleTransfer(v)
	case domain.FeeEvent:
		e.handleFee(v)
	case domain.ResolutionEvent:
		e.handleResolution(v)
	default:
		panic(fmt.Sprintf("ledgerengine: unhandled event type %T", evt))
	}
}

func tsOf(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func (e *Engine) stableID(txHash string, logIndex uint64, entryType domain.EntryType, tokenID string) string {
	key := fmt.Sprintf("%s|%s|%d|%s|%s", e.Wallet, txHash, logIndex, entryType, tokenID)
	return uuid.NewSHA1(stableIDNamespace, []byte(key)).String()
}

func (e *Engine) emit(entry domain.LedgerEntry) {
	entry.Wallet = e.Wallet
	if entry.EntryTimestamp == 0 {
		entry.EntryTimestamp = entry.Timestamp
	}
	entry.StableID = e.stableID(entry.TxHash, entry.LogIndex, entry.EntryType, entry.TokenID)
	e.entries = append(e.entries, entry)
	e.realizedCum += entry.RealizedPnL
	e.cashflowCum += entry.CashDelta
}

func (e *Engine) emitSub(sub domain.RealizedSubEvent) {
	e.subEvents = append(e.subEvents, sub)
}

// weightedMeanOpenedAt computes the quantity-weighted mean opened_at of
// a set of lot consumptions, spec.md §4.5's trade_sell entry timestamp.
func weightedMeanOpenedAt(consumptions []domain.Consumption) int64 {
	if len(consumptions) == 0 {
		return 0
	}
	var totalQty, weighted float64
	for _, c := range consumptions {
		totalQty += c.Quantity
		weighted += c.Quantity * float64(c.OpenedAt.Unix())
	}
	if totalQty == 0 {
		return consumptions[0].OpenedAt.Unix()
	}
	return int64(weighted / totalQty)
}

// outcomeIndexFromSet extracts the outcome index from a single-outcome
// index set (a bitmask with exactly one bit set), the low-bit
// decomposition spec.md §4.5 calls for in the split/merge fallback.
func outcomeIndexFromSet(indexSet uint64) int {
	return bits.TrailingZeros64(indexSet)
}

// ---- trade_buy / trade_sell ----

func (e *Engine) handleTrade(v domain.TradeEvent) {
	ts := tsOf(v.TimestampS)
	qty := fixedpoint.TokenScalar(v.TokenRaw)

	if v.IsBuy {
		usd := fixedpoint.CollateralScalar(v.USDCRaw)
		unitPrice := fixedpoint.SafeDiv(usd, qty)
		e.Inventory.Add(v.TokenID, qty, unitPrice, ts)
		e.lastPrice[v.TokenID] = unitPrice
		e.emit(domain.LedgerEntry{
			EntryType: domain.EntryTradeBuy, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
			Timestamp: v.TimestampS, TokenID: v.TokenID, Quantity: qty,
			CashDelta: -usd, UnitPrice: unitPrice, CostBasis: usd, RealizedPnL: 0,
		})
		return
	}

	netRaw := new(uint256.Int)
	if v.USDCRaw.Cmp(v.FeeRaw) >= 0 {
		netRaw.Sub(v.USDCRaw, v.FeeRaw)
	}
	proceeds := fixedpoint.CollateralScalar(netRaw)
	unitPrice := fixedpoint.SafeDiv(proceeds, qty)
	e.lastPrice[v.TokenID] = unitPrice

	costBasis, consumptions := e.Inventory.Consume(v.TokenID, qty)
	for _, c := range consumptions {
		share := fixedpoint.SafeDiv(c.Quantity, qty)
		subProceeds := share * proceeds
		opened := c.OpenedAt.Unix()
		e.emitSub(domain.RealizedSubEvent{
			Kind: domain.SubEventSell, At: v.TimestampS, OpenedAt: &opened, TokenID: v.TokenID,
			Proceeds: subProceeds, CostBasis: c.CostBasis(), RealizedPnL: subProceeds - c.CostBasis(),
		})
	}
	if len(consumptions) == 0 && proceeds != 0 {
		// Anomaly: sale against an empty bucket (spec.md §7). The ledger
		// entry still carries the full proceeds as realized PnL, so a
		// zero-cost-basis sell sub-event has to carry it too or
		// sum(ledger.realized_pnl) drifts from sum(sub_events.realized_pnl).
		e.emitSub(domain.RealizedSubEvent{
			Kind: domain.SubEventSell, At: v.TimestampS, TokenID: v.TokenID,
			Proceeds: proceeds, CostBasis: 0, RealizedPnL: proceeds,
		})
	}
	e.emit(domain.LedgerEntry{
		EntryType: domain.EntryTradeSell, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
		Timestamp: v.TimestampS, TokenID: v.TokenID, Quantity: qty,
		CashDelta: proceeds, UnitPrice: unitPrice, CostBasis: costBasis, RealizedPnL: proceeds - costBasis,
		EntryTimestamp: weightedMeanOpenedAt(consumptions),
	})
}

// ---- split ----

func (e *Engine) handleSplit(v domain.SplitEvent) {
	ts := tsOf(v.TimestampS)
	cost := fixedpoint.CollateralScalar(v.AmountRaw)

	minted := e.mintedByToken(v.Legs, v.ConditionID, v.Partition, v.AmountRaw)
	var totalMinted float64
	for _, qty := range minted {
		totalMinted += qty
	}
	unitCost := fixedpoint.SafeDiv(cost, totalMinted)
	for token, qty := range minted {
		e.Inventory.Add(token, qty, unitCost, ts)
	}

	entryType := domain.EntrySplit
	if v.Adapter == domain.SplitAdapter {
		entryType = domain.EntryAdapterSplit
	}
	e.emit(domain.LedgerEntry{
		EntryType: entryType, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
		Timestamp: v.TimestampS, ConditionID: v.ConditionID, Quantity: totalMinted,
		CashDelta: -cost, CostBasis: cost, RealizedPnL: 0,
	})
}

// mintedByToken resolves the per-token minted quantity for a split,
// preferring same-transaction ERC-1155 mints to the wallet and falling
// back to the index-set decomposition over the partition.
func (e *Engine) mintedByToken(legs []domain.TransferLeg, conditionID string, partition []uint64, amountRaw *uint256.Int) map[string]float64 {
	out := make(map[string]float64)
	for _, leg := range legs {
		if leg.To != e.Wallet {
			continue
		}
		out[leg.TokenID] += fixedpoint.TokenScalar(leg.ValueRaw)
	}
	if len(out) > 0 {
		return out
	}
	basketRaw := fixedpoint.TokensToOutcomeBasket(amountRaw)
	qty := fixedpoint.TokenScalar(basketRaw)
	for _, indexSet := range partition {
		token, ok := e.Catalog.OutcomeToken(conditionID, outcomeIndexFromSet(indexSet))
		if !ok {
			continue
		}
		out[token] += qty
	}
	return out
}

// ---- merge ----

func (e *Engine) handleMerge(v domain.MergeEvent) {
	proceeds := fixedpoint.CollateralScalar(v.AmountRaw)

	burned := e.burnedByToken(v.Legs, v.ConditionID, v.Partition, v.AmountRaw)
	var totalBurned float64
	for _, qty := range burned {
		totalBurned += qty
	}
	unitProceeds := fixedpoint.SafeDiv(proceeds, totalBurned)

	var totalCostBasis float64
	for token, qty := range burned {
		costBasis, consumptions := e.Inventory.Consume(token, qty)
		totalCostBasis += costBasis
		for _, c := range consumptions {
			subProceeds := c.Quantity * unitProceeds
			opened := c.OpenedAt.Unix()
			e.emitSub(domain.RealizedSubEvent{
				Kind: domain.SubEventMerge, At: v.TimestampS, OpenedAt: &opened, TokenID: token,
				Proceeds: subProceeds, CostBasis: c.CostBasis(), RealizedPnL: subProceeds - c.CostBasis(),
			})
		}
	}

	entryType := domain.EntryMerge
	if v.Adapter == domain.SplitAdapter {
		entryType = domain.EntryAdapterMerge
	}
	e.emit(domain.LedgerEntry{
		EntryType: entryType, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
		Timestamp: v.TimestampS, ConditionID: v.ConditionID, Quantity: totalBurned,
		CashDelta: proceeds, CostBasis: totalCostBasis, RealizedPnL: proceeds - totalCostBasis,
	})
}

func (e *Engine) burnedByToken(legs []domain.TransferLeg, conditionID string, partition []uint64, amountRaw *uint256.Int) map[string]float64 {
	out := make(map[string]float64)
	for _, leg := range legs {
		out[leg.TokenID] += fixedpoint.TokenScalar(leg.ValueRaw)
	}
	if len(out) > 0 {
		return out
	}
	basketRaw := fixedpoint.TokensToOutcomeBasket(amountRaw)
	qty := fixedpoint.TokenScalar(basketRaw)
	for _, indexSet := range partition {
		token, ok := e.Catalog.OutcomeToken(conditionID, outcomeIndexFromSet(indexSet))
		if !ok {
			continue
		}
		out[token] += qty
	}
	return out
}

// ---- redemption ----

func (e *Engine) handleRedemption(v domain.RedemptionEvent) {
	payout := fixedpoint.CollateralScalar(v.PayoutRaw)

	burned := make(map[string]float64)
	switch {
	case len(v.Legs) > 0:
		for _, leg := range v.Legs {
			burned[leg.TokenID] += fixedpoint.TokenScalar(leg.ValueRaw)
		}
	case len(v.PerOutcomeAmounts) > 0:
		for idx, raw := range v.PerOutcomeAmounts {
			token, ok := e.Catalog.OutcomeToken(v.ConditionID, int(idx))
			if !ok {
				continue
			}
			burned[token] += fixedpoint.TokenScalar(raw)
		}
	default:
		for _, indexSet := range v.IndexSets {
			idx := outcomeIndexFromSet(indexSet)
			token, ok := e.Catalog.OutcomeToken(v.ConditionID, idx)
			if !ok {
				continue
			}
			burned[token] += e.Inventory.TotalQuantity(token)
		}
	}

	var expected float64
	ratioByToken := make(map[string]float64, len(burned))
	for token, qty := range burned {
		_, idx, ok := e.Catalog.Locate(token)
		var ratio float64
		if ok {
			ratio = e.Catalog.PayoutRatio(v.ConditionID, idx)
		}
		ratioByToken[token] = ratio
		expected += qty * ratio
	}

	var totalBurned float64
	for _, qty := range burned {
		totalBurned += qty
	}
	uniformUnitProceeds := fixedpoint.SafeDiv(payout, totalBurned)

	var totalCostBasis float64
	for token, qty := range burned {
		costBasis, consumptions := e.Inventory.Consume(token, qty)
		totalCostBasis += costBasis

		var unitProceeds float64
		if expected > fixedpoint.Epsilon {
			unitProceeds = ratioByToken[token] * fixedpoint.SafeDiv(payout, expected)
		} else {
			unitProceeds = uniformUnitProceeds
		}
		for _, c := range consumptions {
			subProceeds := c.Quantity * unitProceeds
			opened := c.OpenedAt.Unix()
			e.emitSub(domain.RealizedSubEvent{
				Kind: domain.SubEventRedemption, At: v.TimestampS, OpenedAt: &opened, TokenID: token,
				Proceeds: subProceeds, CostBasis: c.CostBasis(), RealizedPnL: subProceeds - c.CostBasis(),
			})
		}
	}

	entryType := domain.EntryRedemption
	if v.Adapter == domain.SplitAdapter {
		entryType = domain.EntryAdapterRedemption
	}
	e.emit(domain.LedgerEntry{
		EntryType: entryType, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
		Timestamp: v.TimestampS, ConditionID: v.ConditionID, Quantity: totalBurned,
		CashDelta: payout, CostBasis: totalCostBasis, RealizedPnL: payout - totalCostBasis,
	})
}

// ---- adapter_conversion ----

func (e *Engine) handleAdapterConversion(v domain.AdapterConversionEvent) {
	ts := tsOf(v.TimestampS)

	burned := make(map[string]float64)
	minted := make(map[string]float64)
	for _, leg := range v.Legs {
		switch {
		case leg.To == e.Wallet:
			minted[leg.TokenID] += fixedpoint.TokenScalar(leg.ValueRaw)
		case leg.From == e.Wallet:
			burned[leg.TokenID] += fixedpoint.TokenScalar(leg.ValueRaw)
		}
	}
	if len(v.Legs) == 0 {
		// Reconstruction: each set bit i of index_set names a question the
		// wallet is converting from NO to YES — burn NO(i), mint YES(i).
		// Bits left unset name questions the conversion does not touch.
		amount := fixedpoint.TokenScalar(v.AmountRaw)
		adapterAddr := common.HexToAddress(v.AdapterAddress)
		wrapped := common.HexToAddress(v.WrappedCollateral)
		questionCount := v.QuestionCount
		if n, ok := e.Catalog.QuestionCount(common.Hash(v.MarketID).Hex()); ok {
			questionCount = n
		}
		for i := 0; i < questionCount; i++ {
			if v.IndexSet&(1<<uint(i)) == 0 {
				continue
			}
			no, yes := tokenid.NegRiskOutcomeTokens(adapterAddr, v.MarketID, byte(i), wrapped)
			burned[no.Hex()] += amount
			minted[yes.Hex()] += amount
		}
	}

	var totalCostBasis float64
	for token, qty := range burned {
		costBasis, _ := e.Inventory.Consume(token, qty)
		totalCostBasis += costBasis
	}

	var totalMinted float64
	for _, qty := range minted {
		totalMinted += qty
	}
	if totalMinted > fixedpoint.Epsilon {
		unitCost := fixedpoint.SafeDiv(totalCostBasis, totalMinted)
		for token, qty := range minted {
			uc := unitCost
			if totalCostBasis == 0 {
				uc = e.lastPrice[token]
			}
			e.Inventory.Add(token, qty, uc, ts)
		}
	}

	e.emit(domain.LedgerEntry{
		EntryType: domain.EntryAdapterConversion, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
		Timestamp: v.TimestampS, Quantity: totalMinted, CashDelta: 0, CostBasis: totalCostBasis, RealizedPnL: 0,
	})
}

// ---- transfer_in / transfer_out ----

func (e *Engine) handleTransfer(v domain.TransferEvent) {
	ts := tsOf(v.TimestampS)
	qty := fixedpoint.TokenScalar(v.ValueRaw)

	if v.Direction == domain.TransferOut {
		costBasis, _ := e.Inventory.Consume(v.TokenID, qty)
		unitPrice := fixedpoint.SafeDiv(costBasis, qty)
		e.emit(domain.LedgerEntry{
			EntryType: domain.EntryTransferOut, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
			Timestamp: v.TimestampS, TokenID: v.TokenID, Quantity: qty,
			CashDelta: 0, UnitPrice: unitPrice, CostBasis: costBasis, RealizedPnL: 0,
		})
		return
	}

	var unitCost float64
	switch {
	case e.Inventory.TotalQuantity(v.TokenID) > fixedpoint.Epsilon:
		unitCost = e.Inventory.WeightedAvgUnitCost(v.TokenID)
	default:
		unitCost = e.lastPrice[v.TokenID]
	}
	e.Inventory.Add(v.TokenID, qty, unitCost, ts)
	e.emit(domain.LedgerEntry{
		EntryType: domain.EntryTransferIn, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
		Timestamp: v.TimestampS, TokenID: v.TokenID, Quantity: qty,
		CashDelta: 0, UnitPrice: unitCost, CostBasis: qty * unitCost, RealizedPnL: 0,
	})
}

// ---- fee_refund / fee_withdrawal ----

func (e *Engine) handleFee(v domain.FeeEvent) {
	amount := fixedpoint.CollateralScalar(v.AmountRaw)
	entryType := domain.EntryFeeRefund
	if v.Direction == domain.FeeWithdrawal {
		entryType = domain.EntryFeeWithdrawal
	}
	e.emit(domain.LedgerEntry{
		EntryType: entryType, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
		Timestamp: v.TimestampS, CashDelta: amount, RealizedPnL: amount,
	})
	e.emitSub(domain.RealizedSubEvent{Kind: domain.SubEventFee, At: v.TimestampS, Proceeds: amount, RealizedPnL: amount})
}

// ---- resolution (synthetic) ----

func (e *Engine) handleResolution(v domain.ResolutionEvent) {
	cond, ok := e.Catalog.Condition(v.ConditionID)
	if !ok {
		return // missing condition row: source-inconsistency anomaly, skip (spec.md §7)
	}
	for idx := 0; idx < int(cond.OutcomeSlotCount); idx++ {
		if cond.Payout.Ratio(idx) != 0 {
			continue // positive-ratio outcomes require an explicit redemption to realize
		}
		token, ok := e.Catalog.OutcomeToken(v.ConditionID, idx)
		if !ok {
			continue
		}
		qty := e.Inventory.TotalQuantity(token)
		if qty <= fixedpoint.Epsilon {
			continue
		}
		costBasis, consumptions := e.Inventory.Consume(token, qty)
		for _, c := range consumptions {
			opened := c.OpenedAt.Unix()
			e.emitSub(domain.RealizedSubEvent{
				Kind: domain.SubEventResolutionLoss, At: v.TimestampS, OpenedAt: &opened, TokenID: token,
				Proceeds: 0, CostBasis: c.CostBasis(), RealizedPnL: -c.CostBasis(),
			})
		}
		e.emit(domain.LedgerEntry{
			EntryType: domain.EntryResolutionLoss, TxHash: v.TxHash, LogIndex: v.LogIdx, BlockNumber: v.Block,
			Timestamp: v.TimestampS, TokenID: token, ConditionID: v.ConditionID, Quantity: qty,
			CashDelta: 0, CostBasis: costBasis, RealizedPnL: -costBasis,
		})
	}
}
