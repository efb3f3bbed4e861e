package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyledger/internal/inventory"
)

func TestAdvance_EmitsOneBoundaryPerInterval(t *testing.T) {
	s := New("wallet", 3600, 0, 0)
	inv := inventory.New()

	first := s.Advance(time.Unix(1000, 0), inv, nil, 0, 0)
	assert.Empty(t, first, "first event before the first hour boundary emits nothing")

	second := s.Advance(time.Unix(4000, 0), inv, nil, 0, 0)
	require.Len(t, second, 1)
	assert.Equal(t, int64(3600), second[0].At)
}

func TestAdvance_CatchesUpMultipleBoundaries(t *testing.T) {
	s := New("wallet", 100, 0, 0)
	inv := inventory.New()

	s.Advance(time.Unix(50, 0), inv, nil, 0, 0)
	got := s.Advance(time.Unix(350, 0), inv, nil, 0, 0)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{100, 200, 300}, []int64{got[0].At, got[1].At, got[2].At})
}

func TestFlush_EmitsFinalBoundary(t *testing.T) {
	s := New("wallet", 100, 0, 250)
	inv := inventory.New()
	s.Advance(time.Unix(150, 0), inv, nil, 0, 0)

	flushed := s.Flush(inv, nil, 0, 0)
	require.Len(t, flushed, 1)
	assert.Equal(t, int64(250), flushed[0].At)
}

func TestFlush_NoOpWhenAlreadyCoveredByAdvance(t *testing.T) {
	s := New("wallet", 100, 100, 200)
	inv := inventory.New()
	got := s.Advance(time.Unix(200, 0), inv, nil, 0, 0)
	require.Len(t, got, 2, "boundaries at 100 and 200 both precede or equal the advanced timestamp")

	assert.Empty(t, s.Flush(inv, nil, 0, 0))
}

func TestEmit_ReportsOpenValueAndUnrealized(t *testing.T) {
	s := New("wallet", 100, 0, 0)
	inv := inventory.New()
	inv.Add("tok", 10, 0.4, time.Unix(0, 0))

	snaps := s.Advance(time.Unix(150, 0), inv, map[string]float64{"tok": 0.6}, 5, -4)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 4.0, snaps[0].OpenCost, 1e-9)
	assert.InDelta(t, 6.0, snaps[0].OpenValue, 1e-9)
	assert.InDelta(t, 2.0, snaps[0].Unrealized, 1e-9)
	assert.Equal(t, 5.0, snaps[0].RealizedCum)
	assert.Equal(t, -4.0, snaps[0].CashflowCum)
}
