package fixgateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joripage/stock-oms/pkg/oms/model"
)

func limitOrder() model.Order {
	return model.Order{
		Action:        model.OrderActionBuy,
		TotalQuantity: decimal.NewFromInt(100),
		OrderType:     "LMT",
		LimitPrice:    decimal.RequireFromString("150.25"),
		TimeInForce:   "DAY",
	}
}

func execReport(clOrdID string, status enum.OrdStatus, cum, leaves int64, avg string) executionreport.ExecutionReport {
	msg := executionreport.New(
		field.NewOrderID("98765"),
		field.NewExecID("E-1"),
		field.NewExecType(enum.ExecType_TRADE),
		field.NewOrdStatus(status),
		field.NewSide(enum.Side_BUY),
		field.NewLeavesQty(decimal.NewFromInt(leaves), 0),
		field.NewCumQty(decimal.NewFromInt(cum), 0),
		field.NewAvgPx(decimal.RequireFromString(avg), 2),
	)
	msg.SetClOrdID(clOrdID)
	msg.SetSymbol("AAPL")
	msg.SetOrdType(enum.OrdType_LIMIT)
	msg.SetOrderQty(decimal.NewFromInt(cum+leaves), 0)
	msg.SetPrice(decimal.RequireFromString("150.25"), 2)
	msg.SetTransactTime(time.Now())
	return msg
}

func TestNewOrderSingle(t *testing.T) {
	msg, err := newOrderSingle(42, model.StockContract("AAPL"), limitOrder(), "ACC1")
	require.NoError(t, err)

	clOrdID, _ := msg.GetClOrdID()
	assert.Equal(t, "42", clOrdID)
	side, _ := msg.GetSide()
	assert.Equal(t, enum.Side_BUY, side)
	ordType, _ := msg.GetOrdType()
	assert.Equal(t, enum.OrdType_LIMIT, ordType)
	price, _ := msg.GetPrice()
	assert.True(t, price.Equal(decimal.RequireFromString("150.25")))
	qty, _ := msg.GetOrderQty()
	assert.True(t, qty.Equal(decimal.NewFromInt(100)))
	account, _ := msg.GetAccount()
	assert.Equal(t, "ACC1", account)
	symbol, _ := msg.GetSymbol()
	assert.Equal(t, "AAPL", symbol)
}

func TestNewOrderSingleStopLimit(t *testing.T) {
	order := limitOrder()
	order.OrderType = "STP LMT"
	order.AuxPrice = decimal.RequireFromString("149.5")

	msg, err := newOrderSingle(1, model.StockContract("AAPL"), order, "")
	require.NoError(t, err)
	stop, _ := msg.GetStopPx()
	assert.True(t, stop.Equal(order.AuxPrice))
	price, _ := msg.GetPrice()
	assert.True(t, price.Equal(order.LimitPrice))
}

func TestNewOrderSingleUnsupported(t *testing.T) {
	order := limitOrder()
	order.OrderType = "TRAIL"
	_, err := newOrderSingle(1, model.StockContract("AAPL"), order, "")
	assert.ErrorIs(t, err, ErrUnsupportedOrderType)
}

func TestParseExecutionReport(t *testing.T) {
	r, err := parseExecutionReport(execReport("42", enum.OrdStatus_FILLED, 100, 0, "150.10"))
	require.NoError(t, err)

	contract, order, state, update := r.toCallbacks()
	assert.Equal(t, "AAPL", contract.Symbol)
	assert.Equal(t, "LMT", order.OrderType)
	assert.Equal(t, model.OrderActionBuy, order.Action)
	assert.Equal(t, int64(98765), order.PermID)
	assert.Equal(t, model.OrderStatusFilled, state.Status)

	assert.Equal(t, int64(42), update.OrderID)
	assert.Equal(t, int64(98765), update.PermID)
	assert.True(t, update.Filled.Equal(decimal.NewFromInt(100)))
	assert.True(t, update.AvgFillPrice.Equal(decimal.RequireFromString("150.10")))
}

func TestParseExecutionReportForeignClOrdID(t *testing.T) {
	_, err := parseExecutionReport(execReport("manual-7", enum.OrdStatus_NEW, 0, 100, "0"))
	assert.Error(t, err)
}

func TestOrderStatusMapping(t *testing.T) {
	tests := []struct {
		in       enum.OrdStatus
		want     model.OrderStatus
		terminal bool
	}{
		{enum.OrdStatus_PENDING_NEW, model.OrderStatusPendingSubmit, false},
		{enum.OrdStatus_NEW, model.OrderStatusSubmitted, false},
		{enum.OrdStatus_PARTIALLY_FILLED, model.OrderStatusPartiallyFilled, false},
		{enum.OrdStatus_FILLED, model.OrderStatusFilled, true},
		{enum.OrdStatus_CANCELED, model.OrderStatusCancelled, true},
		{enum.OrdStatus_REJECTED, model.OrderStatusCancelled, true},
		{enum.OrdStatus_EXPIRED, model.OrderStatusCancelled, true},
		{enum.OrdStatus_SUSPENDED, model.OrderStatusInactive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got := OrderStatusMapping[tt.in]
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.terminal, got.IsTerminal())
		})
	}
}

func TestPermanentID(t *testing.T) {
	assert.Equal(t, int64(0), permanentID(""))
	assert.Equal(t, int64(123), permanentID("123"))

	h := permanentID("BRK-XYZ-1")
	assert.Positive(t, h)
	assert.Equal(t, h, permanentID("BRK-XYZ-1"))
	assert.NotEqual(t, h, permanentID("BRK-XYZ-2"))
}

func TestLocalIdentifierSource(t *testing.T) {
	src := NewLocalIdentifierSource(10)
	a, _ := src.Next(context.Background())
	b, _ := src.Next(context.Background())
	assert.Equal(t, int64(10), a)
	assert.Equal(t, int64(11), b)

	assert.Positive(t, mustNext(t, NewLocalIdentifierSource(0)))
}

func mustNext(t *testing.T, src IdentifierSource) int64 {
	id, err := src.Next(context.Background())
	require.NoError(t, err)
	return id
}

type recordingHandler struct {
	mu       sync.Mutex
	granted  []int64
	open     []int64
	statuses []model.OrderStatusUpdate
	ends     int
}

func (h *recordingHandler) OnIdentifierGranted(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.granted = append(h.granted, id)
}

func (h *recordingHandler) OnOpenOrder(id int64, _ model.Contract, _ model.Order, _ model.OrderState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = append(h.open, id)
}

func (h *recordingHandler) OnOrderStatus(u model.OrderStatusUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, u)
}

func (h *recordingHandler) OnOpenOrderEnd() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends++
}

func (h *recordingHandler) snapshot() (granted, open []int64, ends int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.granted...), append([]int64(nil), h.open...), h.ends
}

func TestGatewayReplaysOpenOrders(t *testing.T) {
	h := &recordingHandler{}
	g := NewFixGateway(&FixGatewayConfig{}, NewLocalIdentifierSource(1), zap.NewNop())
	g.handler = h

	g.track(1, model.StockContract("AAPL"), limitOrder())
	g.track(2, model.StockContract("MSFT"), limitOrder())

	r, err := parseExecutionReport(execReport("2", enum.OrdStatus_FILLED, 100, 0, "150.25"))
	require.NoError(t, err)
	g.onReport(r)

	h.mu.Lock()
	require.Len(t, h.statuses, 1)
	assert.Equal(t, model.OrderStatusFilled, h.statuses[0].Status)
	h.mu.Unlock()

	require.NoError(t, g.RequestAllOpenOrders(context.Background()))
	assert.Eventually(t, func() bool {
		_, _, ends := h.snapshot()
		return ends == 1
	}, time.Second, 5*time.Millisecond)

	_, open, _ := h.snapshot()
	// the filled order is reported once, then dropped from the replay
	assert.Equal(t, []int64{2, 1}, open)
}

func TestGatewayGrantsIdentifiersAsynchronously(t *testing.T) {
	h := &recordingHandler{}
	g := NewFixGateway(&FixGatewayConfig{}, NewLocalIdentifierSource(7), nil)
	g.handler = h

	require.NoError(t, g.RequestNextIdentifier(context.Background()))
	assert.Eventually(t, func() bool {
		granted, _, _ := h.snapshot()
		return len(granted) == 1 && granted[0] == 7
	}, time.Second, 5*time.Millisecond)
}

func TestGatewayNotStarted(t *testing.T) {
	g := NewFixGateway(&FixGatewayConfig{}, nil, nil)
	assert.ErrorIs(t, g.RequestNextIdentifier(context.Background()), ErrNotStarted)
	assert.ErrorIs(t, g.SubmitOrder(context.Background(), 1, model.StockContract("AAPL"), limitOrder()), ErrNotStarted)
	assert.ErrorIs(t, g.RequestAllOpenOrders(context.Background()), ErrNotStarted)
}
