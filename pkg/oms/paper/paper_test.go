package paper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joripage/stock-oms/pkg/eventbus"
	"github.com/joripage/stock-oms/pkg/oms"
	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/joripage/stock-oms/pkg/position"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingBus struct {
	mu    sync.Mutex
	sales []*model.Sale
}

func (b *capturingBus) Publish(_ context.Context, topic, _ string, v any) error {
	if topic != eventbus.TopicOrderFilled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev, ok := v.(model.OrderFilledEvent); ok && ev.Sale != nil {
		b.sales = append(b.sales, ev.Sale)
	}
	return nil
}

func (b *capturingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sales)
}

type handlerRecorder struct {
	mu      sync.Mutex
	granted []int64
	status  []model.OrderStatus
	ends    int
}

func (h *handlerRecorder) OnIdentifierGranted(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.granted = append(h.granted, id)
}

func (h *handlerRecorder) OnOpenOrder(int64, model.Contract, model.Order, model.OrderState) {}

func (h *handlerRecorder) OnOrderStatus(u model.OrderStatusUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = append(h.status, u.Status)
}

func (h *handlerRecorder) OnOpenOrderEnd() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends++
}

func (h *handlerRecorder) statuses() []model.OrderStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.OrderStatus(nil), h.status...)
}

func limitOrder(action model.OrderAction) model.Order {
	return model.Order{
		Action:        action,
		TotalQuantity: decimal.NewFromInt(10),
		OrderType:     "LMT",
		LimitPrice:    decimal.RequireFromString("20.5"),
	}
}

func TestManualFillAndCancel(t *testing.T) {
	h := &handlerRecorder{}
	book := position.NewMemoryTracker()
	g := New(Config{FillDelay: -1}, book, nil)
	require.NoError(t, g.Start(context.Background(), h))

	require.NoError(t, g.SubmitOrder(context.Background(), 1, model.StockContract("AAPL"), limitOrder(model.OrderActionBuy)))
	require.NoError(t, g.SubmitOrder(context.Background(), 2, model.StockContract("MSFT"), limitOrder(model.OrderActionBuy)))
	assert.Error(t, g.SubmitOrder(context.Background(), 1, model.StockContract("AAPL"), limitOrder(model.OrderActionBuy)))

	require.Eventually(t, func() bool { return len(h.statuses()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, g.Fill(1))
	require.NoError(t, g.Cancel(2))
	assert.ErrorIs(t, g.Fill(2), ErrUnknownOrder)

	positions, err := book.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.True(t, positions[0].Position.Equal(decimal.NewFromInt(10)))

	require.NoError(t, g.RequestAllOpenOrders(context.Background()))
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.ends == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMarketOrderNeedsPrice(t *testing.T) {
	g := New(Config{FillDelay: -1}, nil, nil)
	require.NoError(t, g.Start(context.Background(), &handlerRecorder{}))

	mkt := model.Order{Action: model.OrderActionBuy, TotalQuantity: decimal.NewFromInt(1), OrderType: "MKT"}
	assert.ErrorIs(t, g.SubmitOrder(context.Background(), 1, model.StockContract("AAPL"), mkt), ErrNoPrice)

	g.SetPrice("AAPL", decimal.NewFromInt(100))
	assert.NoError(t, g.SubmitOrder(context.Background(), 1, model.StockContract("AAPL"), mkt))
}

func TestRoundTripThroughCoordinator(t *testing.T) {
	book := position.NewMemoryTracker()
	book.Update(nil)
	bus := &capturingBus{}
	g := New(Config{FillDelay: 10 * time.Millisecond}, book, nil)

	cfg := oms.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.QueryTimeout = 200 * time.Millisecond
	s := oms.New(g, oms.WithConfig(cfg), oms.WithPositionTracker(book), oms.WithEventBus(bus))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	ctx := context.Background()
	entry := model.OrderRequest{Symbol: "AAPL", Action: model.OrderActionBuy, OrderType: "limit", Parameters: []any{10, 100}}
	placed, err := s.Place(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", placed.Symbol)

	require.Eventually(t, func() bool {
		ps, _ := book.Positions(ctx)
		return len(ps) == 1 && ps[0].Position.Equal(decimal.NewFromInt(10))
	}, 2*time.Second, 5*time.Millisecond)

	// a second entry conflicts with the held position
	_, err = s.Enqueue(ctx, entry)
	assert.Error(t, err)

	exit := model.OrderRequest{
		Symbol: "AAPL", Action: model.OrderActionSell, OrderType: "limit", Parameters: []any{10, 105},
		ExitTrade: true,
		ExitParams: &model.ExitParams{
			EntryPrice: decimal.NewFromInt(100),
			EntryTime:  time.Now().Add(-time.Hour),
			ExitPrice:  decimal.NewFromInt(105),
			ExitTime:   time.Now(),
		},
	}
	_, err = s.Place(ctx, exit)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bus.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	// the flat row stays with its realized result
	ps, err := book.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.True(t, ps[0].Position.IsZero())
	assert.True(t, decimal.NewFromInt(50).Equal(ps[0].RealizedPNL), "realized %s", ps[0].RealizedPNL)
}
