package ledgerengine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyledger/internal/catalog"
	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/snapshot"
	"github.com/alejandrodnm/polyledger/internal/tokenid"
)

const (
	wallet     = "0xWallet"
	collateral = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
)

func tokens(n uint64) *uint256.Int  { return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000)) }
func usdc(microUnits uint64) *uint256.Int { return uint256.NewInt(microUnits) }

func emptyCatalog() *catalog.Catalog { return catalog.New(nil, nil, 0) }

// S1 Open-and-hold buy.
func TestHandleTrade_OpenAndHoldBuy(t *testing.T) {
	eng := New(wallet, emptyCatalog())
	eng.handleTrade(domain.NewTradeEvent("0xtx1", 0, 1, 1000, "tokT", tokens(100), usdc(50_000_000), uint256.NewInt(0), true))

	require.Len(t, eng.entries, 1)
	e := eng.entries[0]
	assert.Equal(t, domain.EntryTradeBuy, e.EntryType)
	assert.InDelta(t, 100, e.Quantity, 1e-9)
	assert.InDelta(t, -50, e.CashDelta, 1e-9)
	assert.InDelta(t, 50, e.CostBasis, 1e-9)
	assert.Equal(t, 0.0, e.RealizedPnL)

	assert.InDelta(t, 100, eng.Inventory.TotalQuantity("tokT"), 1e-9)
	assert.InDelta(t, 0.5, eng.Inventory.WeightedAvgUnitCost("tokT"), 1e-9)
	assert.InDelta(t, 0.5, eng.lastPrice["tokT"], 1e-9)
}

// S2 Buy then partial sell at profit.
func TestHandleTrade_PartialSellAtProfit(t *testing.T) {
	eng := New(wallet, emptyCatalog())
	eng.handleTrade(domain.NewTradeEvent("0xtx1", 0, 1, 1000, "tokT", tokens(100), usdc(50_000_000), uint256.NewInt(0), true))
	eng.handleTrade(domain.NewTradeEvent("0xtx2", 0, 2, 2000, "tokT", tokens(40), usdc(28_000_000), uint256.NewInt(0), false))

	require.Len(t, eng.entries, 2)
	sell := eng.entries[1]
	assert.Equal(t, domain.EntryTradeSell, sell.EntryType)
	assert.InDelta(t, 20, sell.CostBasis, 1e-9)
	assert.InDelta(t, 8, sell.RealizedPnL, 1e-9)
	assert.InDelta(t, 0.7, sell.UnitPrice, 1e-9)

	assert.InDelta(t, 60, eng.Inventory.TotalQuantity("tokT"), 1e-9)
	assert.InDelta(t, 0.5, eng.Inventory.WeightedAvgUnitCost("tokT"), 1e-9)
}

// S3 Split then resolve losing outcome.
func TestHandleSplitThenResolution_LosingOutcomeConsumed(t *testing.T) {
	cond := domain.Condition{
		ConditionID:      "0xcond",
		OutcomeSlotCount: 2,
		CollateralToken:  collateral,
		Payout:           domain.Payout{Numerators: []uint64{1, 0}, Denominator: 1},
		ResolvedAt:       5000,
	}
	cat := catalog.New([]domain.Condition{cond}, nil, 0)
	eng := New(wallet, cat)

	tokA, _ := cat.OutcomeToken(cond.ConditionID, 0)
	tokB, _ := cat.OutcomeToken(cond.ConditionID, 1)

	eng.handleSplit(domain.NewSplitEvent("0xtx1", 0, 1, 1000, cond.ConditionID, []uint64{1, 2}, usdc(10_000_000), nil, domain.SplitPlain))
	require.Len(t, eng.entries, 1)
	assert.InDelta(t, 20, eng.entries[0].Quantity, 1e-9)
	assert.InDelta(t, 10, eng.Inventory.TotalQuantity(tokA), 1e-9)
	assert.InDelta(t, 10, eng.Inventory.TotalQuantity(tokB), 1e-9)
	assert.InDelta(t, 0.5, eng.Inventory.WeightedAvgUnitCost(tokA), 1e-9)

	eng.handleResolution(domain.NewResolutionEvent(cond.ConditionID, cond.ResolvedAt, 3))
	require.Len(t, eng.entries, 2)
	loss := eng.entries[1]
	assert.Equal(t, domain.EntryResolutionLoss, loss.EntryType)
	assert.Equal(t, tokB, loss.TokenID)
	assert.InDelta(t, 5, loss.CostBasis, 1e-9)
	assert.InDelta(t, -5, loss.RealizedPnL, 1e-9)

	assert.InDelta(t, 0, eng.Inventory.TotalQuantity(tokB), 1e-9)
	assert.InDelta(t, 10, eng.Inventory.TotalQuantity(tokA), 1e-9, "winning outcome untouched by resolution")
}

// S4 Redeem winning outcome.
func TestHandleRedemption_WinningOutcomeConsumed(t *testing.T) {
	cond := domain.Condition{
		ConditionID:      "0xcond",
		OutcomeSlotCount: 2,
		CollateralToken:  collateral,
		Payout:           domain.Payout{Numerators: []uint64{1, 0}, Denominator: 1},
		ResolvedAt:       5000,
	}
	cat := catalog.New([]domain.Condition{cond}, nil, 0)
	eng := New(wallet, cat)
	tokA, _ := cat.OutcomeToken(cond.ConditionID, 0)

	eng.handleSplit(domain.NewSplitEvent("0xtx1", 0, 1, 1000, cond.ConditionID, []uint64{1, 2}, usdc(10_000_000), nil, domain.SplitPlain))
	eng.handleRedemption(domain.NewRedemptionEvent("0xtx2", 0, 2, 6000, cond.ConditionID, []uint64{1}, usdc(10_000_000), nil, domain.SplitPlain))

	require.Len(t, eng.entries, 2)
	redemption := eng.entries[1]
	assert.Equal(t, domain.EntryRedemption, redemption.EntryType)
	assert.InDelta(t, 5, redemption.CostBasis, 1e-9)
	assert.InDelta(t, 5, redemption.RealizedPnL, 1e-9)
	assert.InDelta(t, 0, eng.Inventory.TotalQuantity(tokA), 1e-9)
}

// S5 Adapter conversion basis-shift.
func TestHandleAdapterConversion_BasisShiftNoToYes(t *testing.T) {
	adapterAddr := common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296")
	wrapped := common.HexToAddress("0x3A3BD7bb9528E159577F7C2e685CC81A765002E2")
	var marketID [32]byte
	marketID[0] = 0x42
	no, yes := tokenid.NegRiskOutcomeTokens(adapterAddr, marketID, 0, wrapped)

	eng := New(wallet, emptyCatalog())
	eng.Inventory.Add(no.Hex(), 10, 0.3, tsOf(500))

	evt := domain.NewAdapterConversionEvent("0xtx1", 0, 1, 1000, marketID, 1, 1, tokens(10), adapterAddr.Hex(), wrapped.Hex(), nil)
	eng.handleAdapterConversion(evt)

	require.Len(t, eng.entries, 1)
	entry := eng.entries[0]
	assert.Equal(t, domain.EntryAdapterConversion, entry.EntryType)
	assert.InDelta(t, 3, entry.CostBasis, 1e-9)
	assert.Equal(t, 0.0, entry.RealizedPnL)

	assert.InDelta(t, 0, eng.Inventory.TotalQuantity(no.Hex()), 1e-9)
	assert.InDelta(t, 10, eng.Inventory.TotalQuantity(yes.Hex()), 1e-9)
	assert.InDelta(t, 0.3, eng.Inventory.WeightedAvgUnitCost(yes.Hex()), 1e-9)
}

// S6 Snapshot cadence, exercised through Run so both Advance and Flush
// boundaries participate.
func TestRun_SnapshotCadenceBetweenEvents(t *testing.T) {
	events := []domain.Event{
		domain.NewTradeEvent("0xtx1", 0, 1, 100, "tok", tokens(1), usdc(1_000_000), uint256.NewInt(0), true),
		domain.NewFeeEvent("0xtx2", 0, 2, 4000, uint256.NewInt(0), domain.FeeRefund),
		domain.NewFeeEvent("0xtx3", 0, 3, 7300, uint256.NewInt(0), domain.FeeRefund),
	}
	snap := snapshot.New(wallet, 3600, 0, 7300)
	result := Run(wallet, events, emptyCatalog(), snap)

	require.Len(t, result.Snapshots, 3, "boundaries at 3600 and 7200 between events, plus a final flush at end_ts")
	assert.Equal(t, int64(3600), result.Snapshots[0].At)
	assert.Equal(t, int64(7200), result.Snapshots[1].At)
	assert.Equal(t, int64(7300), result.Snapshots[2].At)
}

func TestStableID_DeterministicAcrossRuns(t *testing.T) {
	build := func() domain.LedgerEntry {
		eng := New(wallet, emptyCatalog())
		eng.handleTrade(domain.NewTradeEvent("0xtx1", 0, 1, 1000, "tokT", tokens(100), usdc(50_000_000), uint256.NewInt(0), true))
		return eng.entries[0]
	}
	a, b := build(), build()
	assert.Equal(t, a.StableID, b.StableID, "identical inputs must yield identical stable_id across replays")
}

func TestHandleTransfer_OutConsumesFIFOAtCostNoRealization(t *testing.T) {
	eng := New(wallet, emptyCatalog())
	eng.Inventory.Add("tok", 10, 0.4, tsOf(100))

	eng.handleTransfer(domain.NewTransferEvent("0xtx1", 0, 1, 200, "tok", tokens(4), domain.TransferOut, "op", wallet, "0xfriend"))
	require.Len(t, eng.entries, 1)
	out := eng.entries[0]
	assert.Equal(t, domain.EntryTransferOut, out.EntryType)
	assert.Equal(t, 0.0, out.RealizedPnL, "transfers never realize PnL")
	assert.InDelta(t, 1.6, out.CostBasis, 1e-9)
}

func TestHandleTrade_SellAgainstEmptyBucketEmitsZeroCostSubEvent(t *testing.T) {
	eng := New(wallet, emptyCatalog())
	eng.handleTrade(domain.NewTradeEvent("0xtx1", 0, 1, 1000, "tokT", tokens(10), usdc(7_000_000), uint256.NewInt(0), false))

	require.Len(t, eng.entries, 1)
	sell := eng.entries[0]
	assert.Equal(t, domain.EntryTradeSell, sell.EntryType)
	assert.Equal(t, 0.0, sell.CostBasis)
	assert.InDelta(t, 7, sell.RealizedPnL, 1e-9)

	require.Len(t, eng.subEvents, 1, "an anomalous sell still needs a sub-event or ledger/sub-event realized PnL totals diverge")
	sub := eng.subEvents[0]
	assert.Equal(t, domain.SubEventSell, sub.Kind)
	assert.Equal(t, 0.0, sub.CostBasis)
	assert.InDelta(t, 7, sub.RealizedPnL, 1e-9)
	assert.Nil(t, sub.OpenedAt, "no originating lot to report")
}

func TestHandleFee_PostsRealizedPnLDirectly(t *testing.T) {
	eng := New(wallet, emptyCatalog())
	eng.handleFee(domain.NewFeeEvent("0xtx1", 0, 1, 100, usdc(2_000_000), domain.FeeRefund))

	require.Len(t, eng.entries, 1)
	assert.InDelta(t, 2, eng.entries[0].RealizedPnL, 1e-9)
	require.Len(t, eng.subEvents, 1)
	assert.Equal(t, domain.SubEventFee, eng.subEvents[0].Kind)
}
