// Package fixedpoint holds the conversion boundary between raw on-chain
// integer quantities and the floating scalars the ledger reports.
//
// Collateral (USDC) amounts are raw integers in 6-decimal units. Outcome
// token amounts are raw integers in 18-decimal units. All arithmetic on
// raw quantities happens in 256-bit integers (github.com/holiman/uint256,
// the same package go-ethereum uses internally for EVM words); scalars
// are produced only at the very last step, right before a value is
// attached to a domain.LedgerEntry or realized sub-event.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// TokenDecimals is the exponent for outcome-token raw amounts.
	TokenDecimals = 18
	// CollateralDecimals is the exponent for USDC raw amounts.
	CollateralDecimals = 6
	// TokensPerCollateralUnit is 10^(TokenDecimals-CollateralDecimals).
	TokensPerCollateralUnit = 1_000_000_000_000

	// Epsilon is the residual quantity below which a lot is considered
	// fully consumed (in scalar token units).
	Epsilon = 1e-7
)

var (
	pow18 = new(big.Float).SetFloat64(1e18)
	pow6  = new(big.Float).SetFloat64(1e6)
)

// ParseRaw parses a base-10 integer string (as returned by the store for
// NUMERIC/TEXT columns wide enough to overflow int64) into a uint256.Int.
// An empty string is treated as zero.
func ParseRaw(s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	z, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("fixedpoint.ParseRaw: %q is not a base-10 integer that fits in 256 bits: %w", s, err)
	}
	return z, nil
}

// TokenScalar converts a raw 18-decimal outcome-token quantity to its
// floating scalar (quantity = raw / 10^18).
func TokenScalar(raw *uint256.Int) float64 {
	return toScalar(raw, pow18)
}

// CollateralScalar converts a raw 6-decimal USDC quantity to its floating
// scalar (usd = raw / 10^6).
func CollateralScalar(raw *uint256.Int) float64 {
	return toScalar(raw, pow6)
}

func toScalar(raw *uint256.Int, divisor *big.Float) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw.ToBig())
	f.Quo(f, divisor)
	v, _ := f.Float64()
	return v
}

// TokensToOutcomeBasket converts a raw USDC amount into the raw outcome-
// token quantity minted per full basket share: amount_raw * 10^12.
func TokensToOutcomeBasket(amountRaw *uint256.Int) *uint256.Int {
	return new(uint256.Int).Mul(amountRaw, uint256.NewInt(TokensPerCollateralUnit))
}

// SafeDiv returns a/b, or 0 when b is zero or the result is non-finite —
// the numerical-anomaly handling spec.md §7 requires (division by zero
// during unit-cost computation degrades to a zero field, not a panic).
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	v := a / b
	if v != v || v > maxFinite || v < -maxFinite { // NaN or +-Inf
		return 0
	}
	return v
}

const maxFinite = 1.7976931348623157e+308
