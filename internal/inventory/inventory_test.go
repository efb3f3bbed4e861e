package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAdd_IgnoresNonPositiveQuantity(t *testing.T) {
	inv := New()
	inv.Add("tok", 0, 1.0, t0)
	inv.Add("tok", -1, 1.0, t0)
	assert.Equal(t, 0.0, inv.TotalQuantity("tok"))
}

func TestConsume_FIFOOrder(t *testing.T) {
	inv := New()
	inv.Add("tok", 10, 0.40, t0)
	inv.Add("tok", 10, 0.60, t0.Add(time.Hour))

	cost, consumptions := inv.Consume("tok", 12)
	assert.InDelta(t, 10*0.40+2*0.60, cost, 1e-9)
	assert.Len(t, consumptions, 2)
	assert.InDelta(t, 10, consumptions[0].Quantity, 1e-9)
	assert.InDelta(t, 2, consumptions[1].Quantity, 1e-9)
	assert.InDelta(t, 8, inv.TotalQuantity("tok"), 1e-9)
}

func TestConsume_EmptyBucketReturnsZeroCost(t *testing.T) {
	inv := New()
	cost, consumptions := inv.Consume("nope", 5)
	assert.Equal(t, 0.0, cost)
	assert.Empty(t, consumptions)
}

func TestConsume_PartialLotResidualStaysOpen(t *testing.T) {
	inv := New()
	inv.Add("tok", 10, 0.50, t0)
	inv.Consume("tok", 4)
	assert.InDelta(t, 6, inv.TotalQuantity("tok"), 1e-9)
}

func TestWeightedAvgUnitCost(t *testing.T) {
	inv := New()
	inv.Add("tok", 10, 0.40, t0)
	inv.Add("tok", 10, 0.60, t0)
	assert.InDelta(t, 0.50, inv.WeightedAvgUnitCost("tok"), 1e-9)
}

func TestOpenPositions_SkipsExhaustedBuckets(t *testing.T) {
	inv := New()
	inv.Add("a", 10, 0.5, t0)
	inv.Add("b", 5, 0.3, t0)
	inv.Consume("a", 10)

	positions := inv.OpenPositions()
	assert.Len(t, positions, 1)
	assert.Equal(t, "b", positions[0].TokenID)
}

func TestOpenCost_TimeFilter(t *testing.T) {
	inv := New()
	inv.Add("tok", 10, 1.0, t0)
	inv.Add("tok", 10, 2.0, t0.Add(48*time.Hour))

	filter := &TimeRange{From: t0.Add(24 * time.Hour)}
	assert.InDelta(t, 20.0, inv.OpenCost(filter), 1e-9)
	assert.InDelta(t, 30.0, inv.OpenCost(nil), 1e-9)
}

func TestOpenValue_UsesPriceMap(t *testing.T) {
	inv := New()
	inv.Add("tok", 10, 1.0, t0)
	value := inv.OpenValue(map[string]float64{"tok": 1.5}, nil)
	assert.InDelta(t, 15.0, value, 1e-9)
}

func TestOpenBucketCount(t *testing.T) {
	inv := New()
	inv.Add("a", 10, 1.0, t0)
	inv.Add("b", 5, 1.0, t0)
	inv.Consume("b", 5)
	assert.Equal(t, 1, inv.OpenBucketCount())
}

func TestConsume_ManySmallAddsCompacts(t *testing.T) {
	inv := New()
	for i := 0; i < 200; i++ {
		inv.Add("tok", 1, 1.0, t0)
		inv.Consume("tok", 1)
	}
	assert.Equal(t, 0.0, inv.TotalQuantity("tok"))
}
