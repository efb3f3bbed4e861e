package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRaw_Empty(t *testing.T) {
	z, err := ParseRaw("")
	require.NoError(t, err)
	assert.True(t, z.IsZero())
}

func TestParseRaw_Overflow(t *testing.T) {
	huge := ""
	for i := 0; i < 80; i++ {
		huge += "9"
	}
	_, err := ParseRaw(huge)
	assert.Error(t, err)
}

func TestTokenScalar_OneToken(t *testing.T) {
	raw, err := ParseRaw("1000000000000000000")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, TokenScalar(raw), 1e-9)
}

func TestCollateralScalar_OneUSDC(t *testing.T) {
	raw, err := ParseRaw("1000000")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, CollateralScalar(raw), 1e-9)
}

func TestCollateralScalar_Nil(t *testing.T) {
	assert.Equal(t, 0.0, CollateralScalar(nil))
}

func TestTokensToOutcomeBasket(t *testing.T) {
	amount := uint256.NewInt(5_000_000) // 5 USDC
	basket := TokensToOutcomeBasket(amount)
	assert.InDelta(t, 5.0, TokenScalar(basket), 1e-9)
}

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 0.0, SafeDiv(10, 0))
	assert.InDelta(t, 2.5, SafeDiv(5, 2), 1e-9)
}
