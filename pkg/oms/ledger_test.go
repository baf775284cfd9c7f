package oms

import (
	"testing"
	"time"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMergesReports(t *testing.T) {
	l := NewLedger()
	now := time.Now()

	_, res := l.Upsert(1, model.Order{Action: model.OrderActionBuy, TotalQuantity: decimal.NewFromInt(10)},
		model.StockContract("AAPL"), model.OrderState{Status: model.OrderStatusPreSubmitted}, now)
	assert.Equal(t, UpsertOpen, res)

	e, res := l.Upsert(1, model.Order{PermID: 555}, model.Contract{}, model.OrderState{Status: model.OrderStatusSubmitted}, now)
	assert.Equal(t, UpsertOpen, res)
	assert.Equal(t, model.OrderActionBuy, e.Action())
	assert.Equal(t, int64(555), e.Order.PermID)
	assert.Equal(t, "AAPL", e.Symbol())
	assert.Equal(t, model.OrderStatusSubmitted, e.Status())

	e, res = l.ApplyStatus(model.OrderStatusUpdate{OrderID: 1, Status: model.OrderStatusPartiallyFilled, Filled: decimal.NewFromInt(4)}, now)
	assert.Equal(t, UpsertOpen, res)
	assert.True(t, decimal.NewFromInt(4).Equal(e.State.Filled))
	assert.Equal(t, 1, l.Len())
}

func TestLedgerTerminalRemovesAndIgnoresReplays(t *testing.T) {
	l := NewLedger()
	now := time.Now()

	l.Upsert(2, model.Order{Action: model.OrderActionSell}, model.StockContract("MSFT"), model.OrderState{Status: model.OrderStatusSubmitted}, now)
	e, res := l.ApplyStatus(model.OrderStatusUpdate{OrderID: 2, Status: model.OrderStatusFilled}, now)
	require.Equal(t, UpsertTerminal, res)
	assert.Equal(t, "MSFT", e.Symbol())
	assert.Zero(t, l.Len())

	_, res = l.Upsert(2, model.Order{}, model.StockContract("MSFT"), model.OrderState{Status: model.OrderStatusFilled}, now)
	assert.Equal(t, UpsertIgnored, res)
	e, res = l.ApplyStatus(model.OrderStatusUpdate{OrderID: 2, Status: model.OrderStatusFilled}, now)
	assert.Equal(t, UpsertIgnored, res)
	// the last merged state is kept for the replay
	assert.Equal(t, "MSFT", e.Symbol())
	assert.Equal(t, model.OrderStatusFilled, e.Status())

	_, res = l.ApplyStatus(model.OrderStatusUpdate{OrderID: 3, Status: model.OrderStatusSubmitted}, now)
	assert.Equal(t, UpsertUnknown, res)
}

func TestLedgerFirstReportTerminal(t *testing.T) {
	l := NewLedger()
	_, res := l.Upsert(4, model.Order{}, model.StockContract("IBM"), model.OrderState{Status: model.OrderStatusApiCancelled}, time.Now())
	assert.Equal(t, UpsertTerminal, res)
	assert.Zero(t, l.Len())
}

func TestLedgerPruneTombstones(t *testing.T) {
	l := NewLedger()
	old := time.Now().Add(-time.Hour)
	l.Upsert(5, model.Order{}, model.StockContract("IBM"), model.OrderState{Status: model.OrderStatusFilled}, old)
	l.Upsert(6, model.Order{}, model.StockContract("IBM"), model.OrderState{Status: model.OrderStatusFilled}, time.Now())

	assert.Equal(t, 1, l.PruneTombstones(time.Now().Add(-time.Minute)))

	// 5 is forgotten and may be reported again
	_, res := l.Upsert(5, model.Order{}, model.StockContract("IBM"), model.OrderState{Status: model.OrderStatusSubmitted}, time.Now())
	assert.Equal(t, UpsertOpen, res)
	_, res = l.Upsert(6, model.Order{}, model.StockContract("IBM"), model.OrderState{Status: model.OrderStatusSubmitted}, time.Now())
	assert.Equal(t, UpsertIgnored, res)
}

func TestLedgerAllSorted(t *testing.T) {
	l := NewLedger()
	for _, id := range []int64{9, 3, 7} {
		l.Upsert(id, model.Order{}, model.StockContract("AAPL"), model.OrderState{Status: model.OrderStatusSubmitted}, time.Now())
	}
	all := l.All()
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3, 7, 9}, []int64{all[0].OrderID, all[1].OrderID, all[2].OrderID})

	// copies
	all[0].Contract.Symbol = "X"
	e, _ := l.Get(3)
	assert.Equal(t, "AAPL", e.Symbol())
}
