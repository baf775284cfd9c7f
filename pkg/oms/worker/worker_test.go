package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joripage/stock-oms/pkg/eventbus"
	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/joripage/stock-oms/pkg/oms/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSales struct {
	mu      sync.Mutex
	byOrder map[int64]*model.SaleRecord
	err     error
}

func (f *fakeSales) Create(_ context.Context, r *model.SaleRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.byOrder[r.OrderID]; ok {
		return false, nil
	}
	f.byOrder[r.OrderID] = r
	return true, nil
}

func (f *fakeSales) BulkCreate(ctx context.Context, rs []*model.SaleRecord) ([]*model.SaleRecord, error) {
	for _, r := range rs {
		if _, err := f.Create(ctx, r); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func (f *fakeSales) ListBySymbol(_ context.Context, symbol string, _ int) ([]*model.SaleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.SaleRecord
	for _, r := range f.byOrder {
		if r.Symbol == symbol {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSales) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byOrder)
}

type fakeRepo struct{ sales *fakeSales }

func (r fakeRepo) Sale() repo.ISale { return r.sales }

func newWorker() (*Worker, *fakeSales) {
	sales := &fakeSales{byOrder: map[int64]*model.SaleRecord{}}
	return NewWorker(fakeRepo{sales: sales}, zap.NewNop()), sales
}

func filledEvent(orderID int64, withSale bool) model.OrderFilledEvent {
	ev := model.OrderFilledEvent{
		Order: model.OpenOrderEntry{
			OrderID:  orderID,
			Contract: model.StockContract("AAPL"),
			Order:    model.Order{Action: model.OrderActionSell, PermID: 9000 + orderID},
			State:    model.OrderState{Status: model.OrderStatusFilled},
		},
	}
	if withSale {
		ev.Sale = &model.Sale{
			Symbol:     "AAPL",
			EntryPrice: decimal.RequireFromString("101.10"),
			EntryTime:  time.Date(2026, 10, 1, 14, 30, 0, 0, time.UTC),
			ExitPrice:  decimal.RequireFromString("100.05"),
			ExitTime:   time.Date(2026, 10, 2, 15, 0, 0, 0, time.UTC),
			Profit:     decimal.RequireFromString("1.05"),
		}
	}
	return ev
}

func message(t *testing.T, ev model.OrderFilledEvent) eventbus.Message {
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return eventbus.Message{Topic: eventbus.TopicOrderFilled, Key: "AAPL", Value: data}
}

func TestWorkerJournalsSales(t *testing.T) {
	w, sales := newWorker()
	bus := eventbus.NewMemoryBus(zap.NewNop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.StartConsumer(ctx, bus))

	require.NoError(t, bus.Publish(ctx, eventbus.TopicOrderFilled, "AAPL", filledEvent(1, true)))
	require.NoError(t, bus.Publish(ctx, eventbus.TopicOrderFilled, "AAPL", filledEvent(2, false)))
	require.NoError(t, bus.Publish(ctx, eventbus.TopicOrderFilled, "AAPL", filledEvent(1, true)))

	require.Eventually(t, func() bool { return sales.len() == 1 }, time.Second, 5*time.Millisecond)

	rows, err := sales.ListBySymbol(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9001), rows[0].PermID)
	assert.True(t, rows[0].Profit.Equal(decimal.RequireFromString("1.05")))
}

func TestWorkerReturnsStoreErrors(t *testing.T) {
	w, sales := newWorker()
	sales.err = errors.New("connection refused")

	err := w.handleEvent(context.Background(), message(t, filledEvent(3, true)))
	assert.ErrorIs(t, err, sales.err)
}

func TestWorkerDropsMalformedPayload(t *testing.T) {
	w, sales := newWorker()
	err := w.handleEvent(context.Background(), eventbus.Message{Topic: eventbus.TopicOrderFilled, Value: []byte("{")})
	assert.NoError(t, err)
	assert.Zero(t, sales.len())
}
