package domain

import "github.com/holiman/uint256"

// EventKind tags the concrete type behind the Event interface so the
// ledger engine can dispatch on it with a type switch instead of a
// dynamic record lookup.
type EventKind int

const (
	KindTrade EventKind = iota
	KindSplit
	KindMerge
	KindRedemption
	KindAdapterConversion
	KindTransfer
	KindFee
	KindResolution
)

// MaxLogIndex places synthetic resolution events strictly after every
// in-block event, per spec.md §4.4.
const MaxLogIndex = ^uint64(0)

// OrderKey is the unified-stream sort key: ascending
// (timestamp_sec, block_number, log_index, type_tag).
type OrderKey struct {
	TimestampSec int64
	BlockNumber  uint64
	LogIndex     uint64
	TypeTag      int
}

// Less implements the total ordering spec.md §4.4 requires.
func (k OrderKey) Less(o OrderKey) bool {
	if k.TimestampSec != o.TimestampSec {
		return k.TimestampSec < o.TimestampSec
	}
	if k.BlockNumber != o.BlockNumber {
		return k.BlockNumber < o.BlockNumber
	}
	if k.LogIndex != o.LogIndex {
		return k.LogIndex < o.LogIndex
	}
	return k.TypeTag < o.TypeTag
}

// Event is the sum type the unified stream carries and the ledger
// engine dispatches on.
type Event interface {
	Key() OrderKey
	Kind() EventKind
	Hash() string // tx_hash; empty for synthetic events
}

// base carries the fields every chain-sourced event shares.
type base struct {
	TxHash      string
	LogIdx      uint64
	Block       uint64
	TimestampS  int64
	typeTag     int
}

func (b base) Key() OrderKey {
	return OrderKey{TimestampSec: b.TimestampS, BlockNumber: b.Block, LogIndex: b.LogIdx, TypeTag: b.typeTag}
}
func (b base) Hash() string { return b.TxHash }

// TransferLeg is one ERC-1155 transfer observed in the same transaction
// as a bookkeeping event, correlated by the Event Loader so the Ledger
// Engine can prefer same-tx mints/burns over the index-set fallback.
type TransferLeg struct {
	TokenID  string
	ValueRaw *uint256.Int
	From     string
	To       string
}

// NewBase constructs the ordering/base fields for a chain-sourced event.
func NewBase(txHash string, logIndex, block uint64, timestampSec int64, typeTag int) base {
	return base{TxHash: txHash, LogIdx: logIndex, Block: block, TimestampS: timestampSec, typeTag: typeTag}
}

// Type tags used as the tie-breaker in OrderKey. Arbitrary but stable;
// resolution's MaxLogIndex already sorts it after every other event of
// the same timestamp and block, so its tag only matters for same-block
// synthetic ties (there are none).
const (
	tagTrade = iota
	tagSplit
	tagMerge
	tagRedemption
	tagAdapterConversion
	tagTransfer
	tagFee
	tagResolution
)

// TradeEvent is an OrderFilled fill on either side, from the wallet's
// perspective (the Event Loader resolves maker/taker and buy/sell side
// before constructing this).
type TradeEvent struct {
	base
	TokenID  string
	TokenRaw *uint256.Int
	USDCRaw  *uint256.Int
	FeeRaw   *uint256.Int
	IsBuy    bool
}

func NewTradeEvent(txHash string, logIndex, block uint64, ts int64, tokenID string, tokenRaw, usdcRaw, feeRaw *uint256.Int, isBuy bool) TradeEvent {
	return TradeEvent{base: NewBase(txHash, logIndex, block, ts, tagTrade), TokenID: tokenID, TokenRaw: tokenRaw, USDCRaw: usdcRaw, FeeRaw: feeRaw, IsBuy: isBuy}
}
func (TradeEvent) Kind() EventKind { return KindTrade }

// SplitKind distinguishes a plain split/merge/redemption from its
// negative-risk adapter variant; both are handled identically except
// for the ledger entry type tag they produce.
type SplitKind int

const (
	SplitPlain SplitKind = iota
	SplitAdapter
)

// SplitEvent locks collateral and mints a full outcome-token basket for
// a condition's partition.
type SplitEvent struct {
	base
	Adapter     SplitKind
	ConditionID string
	Partition   []uint64 // one bitmask index set per basket member
	AmountRaw   *uint256.Int
	Legs        []TransferLeg // same-tx ERC-1155 mints, if any
}

func NewSplitEvent(txHash string, logIndex, block uint64, ts int64, conditionID string, partition []uint64, amountRaw *uint256.Int, legs []TransferLeg, adapter SplitKind) SplitEvent {
	return SplitEvent{base: NewBase(txHash, logIndex, block, ts, tagSplit), Adapter: adapter, ConditionID: conditionID, Partition: partition, AmountRaw: amountRaw, Legs: legs}
}
func (SplitEvent) Kind() EventKind { return KindSplit }

// MergeEvent burns a full outcome-token basket back into collateral.
type MergeEvent struct {
	base
	Adapter     SplitKind
	ConditionID string
	Partition   []uint64
	AmountRaw   *uint256.Int
	Legs        []TransferLeg // same-tx ERC-1155 burns, if any
}

func NewMergeEvent(txHash string, logIndex, block uint64, ts int64, conditionID string, partition []uint64, amountRaw *uint256.Int, legs []TransferLeg, adapter SplitKind) MergeEvent {
	return MergeEvent{base: NewBase(txHash, logIndex, block, ts, tagMerge), Adapter: adapter, ConditionID: conditionID, Partition: partition, AmountRaw: amountRaw, Legs: legs}
}
func (MergeEvent) Kind() EventKind { return KindMerge }

// RedemptionEvent burns held outcome tokens of a resolved condition for
// the corresponding collateral payout.
type RedemptionEvent struct {
	base
	Adapter           SplitKind
	ConditionID       string
	IndexSets         []uint64
	PayoutRaw         *uint256.Int
	PerOutcomeAmounts map[uint64]*uint256.Int // adapter variant explicit burns, keyed by outcome index
	Legs              []TransferLeg           // same-tx ERC-1155 burns, if any
}

func NewRedemptionEvent(txHash string, logIndex, block uint64, ts int64, conditionID string, indexSets []uint64, payoutRaw *uint256.Int, legs []TransferLeg, adapter SplitKind) RedemptionEvent {
	return RedemptionEvent{base: NewBase(txHash, logIndex, block, ts, tagRedemption), Adapter: adapter, ConditionID: conditionID, IndexSets: indexSets, PayoutRaw: payoutRaw, Legs: legs}
}
func (RedemptionEvent) Kind() EventKind { return KindRedemption }

// AdapterConversionEvent swaps one outcome set for another inside a
// negative-risk multi-question market; it is a basis-shifting operation,
// not a realization.
type AdapterConversionEvent struct {
	base
	MarketID          [32]byte
	IndexSet          uint64 // bitmask over question bits
	QuestionCount     int
	AmountRaw         *uint256.Int
	AdapterAddress    string
	WrappedCollateral string
	Legs              []TransferLeg // same-tx burns (from wallet) and mints (to wallet)
}

func NewAdapterConversionEvent(txHash string, logIndex, block uint64, ts int64, marketID [32]byte, indexSet uint64, questionCount int, amountRaw *uint256.Int, adapterAddress, wrappedCollateral string, legs []TransferLeg) AdapterConversionEvent {
	return AdapterConversionEvent{
		base: NewBase(txHash, logIndex, block, ts, tagAdapterConversion),
		MarketID: marketID, IndexSet: indexSet, QuestionCount: questionCount, AmountRaw: amountRaw,
		AdapterAddress: adapterAddress, WrappedCollateral: wrappedCollateral, Legs: legs,
	}
}
func (AdapterConversionEvent) Kind() EventKind { return KindAdapterConversion }

// TransferDirection is the wallet's side of a non-exchange, non-
// bookkeeping ERC-1155 transfer.
type TransferDirection int

const (
	TransferIn TransferDirection = iota
	TransferOut
)

// TransferEvent is a gift/airdrop-style outcome-token move that is
// neither the token leg of a bookkeeping event nor exchange-internal.
type TransferEvent struct {
	base
	TokenID   string
	ValueRaw  *uint256.Int
	Direction TransferDirection
	Operator  string
	From      string
	To        string
}

func NewTransferEvent(txHash string, logIndex, block uint64, ts int64, tokenID string, valueRaw *uint256.Int, dir TransferDirection, operator, from, to string) TransferEvent {
	return TransferEvent{base: NewBase(txHash, logIndex, block, ts, tagTransfer), TokenID: tokenID, ValueRaw: valueRaw, Direction: dir, Operator: operator, From: from, To: to}
}
func (TransferEvent) Kind() EventKind { return KindTransfer }

// FeeDirection distinguishes a reward/fee refund from a fee-module
// withdrawal; spec.md §9 leaves whether these should be taxonomically
// distinct as an open question — both are modeled, both post pure
// realized PnL (see DESIGN.md).
type FeeDirection int

const (
	FeeRefund FeeDirection = iota
	FeeWithdrawal
)

// FeeEvent is a payment to the wallet from the fee module.
type FeeEvent struct {
	base
	AmountRaw *uint256.Int
	Direction FeeDirection
}

func NewFeeEvent(txHash string, logIndex, block uint64, ts int64, amountRaw *uint256.Int, dir FeeDirection) FeeEvent {
	return FeeEvent{base: NewBase(txHash, logIndex, block, ts, tagFee), AmountRaw: amountRaw, Direction: dir}
}
func (FeeEvent) Kind() EventKind { return KindFee }

// ResolutionEvent is synthesized by the Unified Event Stream for every
// condition the catalog reports as resolved; it always sorts after the
// final in-block event of ResolvedAt via MaxLogIndex.
type ResolutionEvent struct {
	base
	ConditionID string
}

func NewResolutionEvent(conditionID string, resolvedAt int64, resolvedBlock uint64) ResolutionEvent {
	return ResolutionEvent{base: NewBase("", MaxLogIndex, resolvedBlock, resolvedAt, tagResolution), ConditionID: conditionID}
}
func (ResolutionEvent) Kind() EventKind { return KindResolution }
