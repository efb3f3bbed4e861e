// Package tokenid derives Conditional Token Framework position IDs the
// same way the on-chain contract does: two successive packed-keccak
// hashes over (parent collection, condition, index set) and then
// (collateral, collection). It is the bridge from event content to
// inventory buckets whenever the ERC-1155 transfer legs of a split,
// merge, redemption or conversion are absent from the log.
//
// Bit-exactness with the contract matters more than speed here, so this
// mirrors the ABI packing the teacher's on-chain merge adapter already
// does with go-ethereum's abi/crypto packages rather than reimplementing
// keccak or address encoding by hand.
package tokenid

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ZeroParentCollection is the root collection ID used for a plain
// (non-negative-risk) condition split directly against collateral.
var ZeroParentCollection [32]byte

// CollectionID computes keccak256(parentCollectionId || conditionId ||
// indexSet), matching ConditionalTokens.getCollectionId.
func CollectionID(parentCollectionID [32]byte, conditionID [32]byte, indexSet *uint256.Int) [32]byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, parentCollectionID[:]...)
	buf = append(buf, conditionID[:]...)
	buf = append(buf, indexSet.PaddedBytes(32)...)
	return crypto.Keccak256Hash(buf)
}

// PositionID computes the big-endian uint256 of
// keccak256(collateralToken || collectionId), matching
// ConditionalTokens.getPositionId. This is the outcome-token identifier
// used throughout the ledger.
func PositionID(collateralToken common.Address, collectionID [32]byte) *uint256.Int {
	buf := make([]byte, 0, 52)
	buf = append(buf, collateralToken.Bytes()...)
	buf = append(buf, collectionID[:]...)
	digest := crypto.Keccak256(buf)
	return new(uint256.Int).SetBytes(digest)
}

// IndexSetForOutcome returns the single-outcome index set (1 << index)
// used to derive one outcome token of a condition.
func IndexSetForOutcome(outcomeIndex uint) *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), outcomeIndex)
}

// OutcomeToken derives the outcome-token identifier for
// (parentCollectionID, conditionID, outcomeIndex, collateralToken).
func OutcomeToken(parentCollectionID [32]byte, conditionID [32]byte, outcomeIndex uint, collateralToken common.Address) *uint256.Int {
	collection := CollectionID(parentCollectionID, conditionID, IndexSetForOutcome(outcomeIndex))
	return PositionID(collateralToken, collection)
}

// DeriveAll returns the ordered tuple of outcome-token identifiers, one
// per outcome index, for a condition with outcomeSlotCount outcomes.
func DeriveAll(parentCollectionID [32]byte, conditionID [32]byte, outcomeSlotCount uint, collateralToken common.Address) []*uint256.Int {
	tokens := make([]*uint256.Int, outcomeSlotCount)
	for i := uint(0); i < outcomeSlotCount; i++ {
		tokens[i] = OutcomeToken(parentCollectionID, conditionID, i, collateralToken)
	}
	return tokens
}

// NegRiskQuestionID replaces the low byte of a negative-risk market
// identifier with the per-question index i, matching the NegRiskAdapter's
// question-to-condition derivation.
func NegRiskQuestionID(marketID [32]byte, questionIndex byte) [32]byte {
	q := marketID
	q[31] = questionIndex
	return q
}

// NegRiskConditionID computes the condition ID for question i of a
// negative-risk market: keccak256(adapterAddress || questionId ||
// outcomeSlotCount=2), matching ConditionalTokens.prepareCondition with
// the adapter acting as oracle.
func NegRiskConditionID(adapterAddress common.Address, marketID [32]byte, questionIndex byte) [32]byte {
	questionID := NegRiskQuestionID(marketID, questionIndex)
	buf := make([]byte, 0, 84)
	buf = append(buf, adapterAddress.Bytes()...)
	buf = append(buf, questionID[:]...)
	buf = append(buf, uint256.NewInt(2).PaddedBytes(32)...)
	return crypto.Keccak256Hash(buf)
}

// NegRiskOutcomeTokens derives the (NO, YES) outcome-token pair for
// question i of a negative-risk market, against the wrapped-collateral
// token and a zero parent collection, per spec.md §4.8. YES is outcome
// index 0 (index set 1) and NO is outcome index 1 (index set 2).
func NegRiskOutcomeTokens(adapterAddress common.Address, marketID [32]byte, questionIndex byte, wrappedCollateral common.Address) (no, yes *uint256.Int) {
	conditionID := NegRiskConditionID(adapterAddress, marketID, questionIndex)
	yes = OutcomeToken(ZeroParentCollection, conditionID, 0, wrappedCollateral)
	no = OutcomeToken(ZeroParentCollection, conditionID, 1, wrappedCollateral)
	return no, yes
}
