package position

import (
	"context"
	"testing"
	"time"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMemoryTrackerWaitsForFirstSnapshot(t *testing.T) {
	tr := NewMemoryTracker()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tr.Positions(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	tr.Update([]model.Position{{Symbol: "MSFT", Position: d("5")}, {Symbol: "AAPL", Position: d("10")}})
	ps, err := tr.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "AAPL", ps[0].Symbol)

	tr.Update(nil)
	ps, err = tr.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestApplyFillBuildsAndClosesPosition(t *testing.T) {
	tr := NewMemoryTracker()

	tr.Apply("AAPL", d("10"), d("100"))
	p := tr.Apply("AAPL", d("10"), d("110"))
	assert.True(t, d("20").Equal(p.Position))
	assert.True(t, d("105").Equal(p.AverageCost), "avg %s", p.AverageCost)

	p = tr.Apply("AAPL", d("-5"), d("120"))
	assert.True(t, d("15").Equal(p.Position))
	assert.True(t, d("105").Equal(p.AverageCost))
	assert.True(t, d("75").Equal(p.RealizedPNL), "realized %s", p.RealizedPNL)

	p = tr.Apply("AAPL", d("-15"), d("100"))
	assert.True(t, p.Position.IsZero())
	assert.True(t, p.AverageCost.IsZero())
	assert.True(t, d("0").Equal(p.RealizedPNL), "realized %s", p.RealizedPNL)
}

func TestApplyFillFlipsThroughZero(t *testing.T) {
	p := applyFill(model.Position{}, "TSLA", d("10"), d("50"))
	p = applyFill(p, "TSLA", d("-15"), d("60"))

	assert.True(t, d("-5").Equal(p.Position))
	assert.True(t, d("60").Equal(p.AverageCost))
	assert.True(t, d("100").Equal(p.RealizedPNL))
	assert.True(t, d("-300").Equal(p.MarketValue))
}

func TestApplyFillShortCover(t *testing.T) {
	p := applyFill(model.Position{}, "IBM", d("-10"), d("20"))
	p = applyFill(p, "IBM", d("4"), d("15"))

	assert.True(t, d("-6").Equal(p.Position))
	assert.True(t, d("20").Equal(p.AverageCost))
	assert.True(t, d("20").Equal(p.RealizedPNL), "realized %s", p.RealizedPNL)
}

func TestDecodePosition(t *testing.T) {
	p, err := decodePosition(`{"symbol":"AAPL","position":"12","averageCost":"101.5"}`)
	require.NoError(t, err)
	assert.True(t, d("12").Equal(p.Position))

	_, err = decodePosition("{")
	assert.Error(t, err)
}
