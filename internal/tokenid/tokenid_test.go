package tokenid

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestOutcomeToken_Deterministic(t *testing.T) {
	var conditionID [32]byte
	conditionID[0] = 0xAB
	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	a := OutcomeToken(ZeroParentCollection, conditionID, 0, collateral)
	b := OutcomeToken(ZeroParentCollection, conditionID, 0, collateral)
	assert.Equal(t, a.Hex(), b.Hex(), "derivation must be deterministic")
}

func TestOutcomeToken_DistinctIndices(t *testing.T) {
	var conditionID [32]byte
	conditionID[1] = 0xCD
	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	yes := OutcomeToken(ZeroParentCollection, conditionID, 0, collateral)
	no := OutcomeToken(ZeroParentCollection, conditionID, 1, collateral)
	assert.NotEqual(t, yes.Hex(), no.Hex())
}

func TestDeriveAll_OrderedByIndex(t *testing.T) {
	var conditionID [32]byte
	conditionID[2] = 0xEF
	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	tokens := DeriveAll(ZeroParentCollection, conditionID, 2, collateral)
	require := assert.New(t)
	require.Len(tokens, 2)
	require.Equal(OutcomeToken(ZeroParentCollection, conditionID, 0, collateral).Hex(), tokens[0].Hex())
	require.Equal(OutcomeToken(ZeroParentCollection, conditionID, 1, collateral).Hex(), tokens[1].Hex())
}

func TestIndexSetForOutcome(t *testing.T) {
	assert.Equal(t, uint256.NewInt(1).Uint64(), IndexSetForOutcome(0).Uint64())
	assert.Equal(t, uint256.NewInt(2).Uint64(), IndexSetForOutcome(1).Uint64())
	assert.Equal(t, uint256.NewInt(4).Uint64(), IndexSetForOutcome(2).Uint64())
}

func TestNegRiskQuestionID_ReplacesLowByte(t *testing.T) {
	var marketID [32]byte
	for i := range marketID {
		marketID[i] = 0x11
	}
	q := NegRiskQuestionID(marketID, 7)
	assert.Equal(t, byte(7), q[31])
	assert.Equal(t, byte(0x11), q[0], "only the low byte changes")
}

func TestNegRiskOutcomeTokens_YesNoDistinct(t *testing.T) {
	adapter := common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296")
	wrapped := common.HexToAddress("0x3A3BD7bb9528E159577F7C2e685CC81A765002E2")
	var marketID [32]byte
	marketID[0] = 0x42

	no, yes := NegRiskOutcomeTokens(adapter, marketID, 3, wrapped)
	assert.NotEqual(t, no.Hex(), yes.Hex())

	no2, yes2 := NegRiskOutcomeTokens(adapter, marketID, 3, wrapped)
	assert.Equal(t, no.Hex(), no2.Hex())
	assert.Equal(t, yes.Hex(), yes2.Hex())
}

func TestNegRiskOutcomeTokens_DistinctAcrossQuestions(t *testing.T) {
	adapter := common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296")
	wrapped := common.HexToAddress("0x3A3BD7bb9528E159577F7C2e685CC81A765002E2")
	var marketID [32]byte
	marketID[0] = 0x42

	no0, _ := NegRiskOutcomeTokens(adapter, marketID, 0, wrapped)
	no1, _ := NegRiskOutcomeTokens(adapter, marketID, 1, wrapped)
	assert.NotEqual(t, no0.Hex(), no1.Hex())
}
