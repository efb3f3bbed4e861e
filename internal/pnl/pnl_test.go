package pnl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/inventory"
)

func ptr(i int64) *int64 { return &i }

func TestAggregate_RealizedPeriodOnly_FiltersByOpenedAt(t *testing.T) {
	subs := []domain.RealizedSubEvent{
		{Kind: domain.SubEventSell, At: 150, OpenedAt: ptr(100), RealizedPnL: 10},
		{Kind: domain.SubEventSell, At: 150, OpenedAt: ptr(50), RealizedPnL: 999}, // lot opened before window
	}
	period := Period{Start: 100, End: 200}

	res := Aggregate(subs, inventory.New(), nil, period, RealizedPeriodOnly)
	assert.Equal(t, 10.0, res.ByKind[domain.SubEventSell])
	assert.Equal(t, 10.0, res.Total)
}

func TestAggregate_RealizedWithHistory_IgnoresOpenedAt(t *testing.T) {
	subs := []domain.RealizedSubEvent{
		{Kind: domain.SubEventSell, At: 150, OpenedAt: ptr(50), RealizedPnL: 999},
	}
	period := Period{Start: 100, End: 200}

	res := Aggregate(subs, inventory.New(), nil, period, RealizedWithHistory)
	assert.Equal(t, 999.0, res.ByKind[domain.SubEventSell])
}

func TestAggregate_ExcludesSubEventsOutsidePeriod(t *testing.T) {
	subs := []domain.RealizedSubEvent{
		{Kind: domain.SubEventSell, At: 50, RealizedPnL: 10},
		{Kind: domain.SubEventSell, At: 250, RealizedPnL: 20},
	}
	period := Period{Start: 100, End: 200}

	res := Aggregate(subs, inventory.New(), nil, period, RealizedWithHistory)
	assert.Empty(t, res.ByKind)
	assert.Equal(t, 0.0, res.Total)
}

func TestAggregate_FeeSubEventHasNoOpenedAtRestriction(t *testing.T) {
	subs := []domain.RealizedSubEvent{
		{Kind: domain.SubEventFee, At: 150, OpenedAt: nil, RealizedPnL: -2},
	}
	period := Period{Start: 100, End: 200}

	res := Aggregate(subs, inventory.New(), nil, period, RealizedPeriodOnly)
	assert.Equal(t, -2.0, res.ByKind[domain.SubEventFee])
}

func TestAggregate_PeriodPlusUnrealized_RestrictsOpenLotsToWindow(t *testing.T) {
	inv := inventory.New()
	inv.Add("tok", 10, 0.4, time.Unix(50, 0))  // opened before window
	inv.Add("tok", 5, 0.4, time.Unix(150, 0)) // opened inside window

	period := Period{Start: 100, End: 200}
	res := Aggregate(nil, inv, map[string]float64{"tok": 0.6}, period, PeriodPlusUnrealized)

	assert.InDelta(t, 2.0, res.OpenCost, 1e-9)
	assert.InDelta(t, 3.0, res.OpenValue, 1e-9)
	assert.InDelta(t, 1.0, res.Unrealized, 1e-9)
}

func TestAggregate_Total_IncludesEveryOpenLot(t *testing.T) {
	inv := inventory.New()
	inv.Add("tok", 10, 0.4, time.Unix(50, 0))
	inv.Add("tok", 5, 0.4, time.Unix(150, 0))

	period := Period{Start: 100, End: 200}
	res := Aggregate(nil, inv, map[string]float64{"tok": 0.6}, period, Total)

	assert.InDelta(t, 6.0, res.OpenCost, 1e-9)
	assert.InDelta(t, 9.0, res.OpenValue, 1e-9)
	assert.InDelta(t, 3.0, res.Unrealized, 1e-9)
}

func TestAggregate_RealizedPeriodOnly_NoUnrealizedComponent(t *testing.T) {
	inv := inventory.New()
	inv.Add("tok", 10, 0.4, time.Unix(150, 0))
	period := Period{Start: 100, End: 200}

	res := Aggregate(nil, inv, map[string]float64{"tok": 0.6}, period, RealizedPeriodOnly)
	assert.Equal(t, 0.0, res.OpenCost)
	assert.Equal(t, 0.0, res.OpenValue)
	assert.Equal(t, 0.0, res.Unrealized)
}

func TestAggregate_TotalSumsRealizedAndUnrealized(t *testing.T) {
	subs := []domain.RealizedSubEvent{
		{Kind: domain.SubEventSell, At: 150, OpenedAt: ptr(50), RealizedPnL: 4},
	}
	inv := inventory.New()
	inv.Add("tok", 10, 0.4, time.Unix(50, 0))

	period := Period{Start: 100, End: 200}
	res := Aggregate(subs, inv, map[string]float64{"tok": 0.6}, period, Total)

	assert.InDelta(t, 4.0, res.ByKind[domain.SubEventSell], 1e-9)
	assert.InDelta(t, 2.0, res.Unrealized, 1e-9)
	assert.InDelta(t, 6.0, res.Total, 1e-9)
}
