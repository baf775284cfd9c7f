package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOrder(t *testing.T) {
	base := OrderRequest{Symbol: "AAPL", Action: OrderActionBuy, OrderType: "limit", Parameters: []any{1, 2}}
	require.NoError(t, base.Validate())

	tests := []struct {
		name string
		mod  func(r *OrderRequest)
		want error
	}{
		{"empty symbol", func(r *OrderRequest) { r.Symbol = " " }, ErrInvalidRequest},
		{"no parameters", func(r *OrderRequest) { r.Parameters = nil }, ErrMissingParameters},
		{"bad action", func(r *OrderRequest) { r.Action = "HOLD" }, ErrInvalidRequest},
		{"bad type", func(r *OrderRequest) { r.OrderType = "iceberg" }, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base.Clone()
			tt.mod(&r)
			assert.ErrorIs(t, r.Validate(), tt.want)
		})
	}
}

func TestBuildOrder(t *testing.T) {
	tests := []struct {
		orderType string
		params    []any
		code      string
		limit     string
		aux       string
	}{
		{"market", []any{10}, "MKT", "0", "0"},
		{"marketOnClose", []any{10}, "MOC", "0", "0"},
		{"limit", []any{10, 101.5}, "LMT", "101.5", "0"},
		{"limit_on_close", []any{10, "99.95"}, "LOC", "99.95", "0"},
		{"stop", []any{10, 95}, "STP", "0", "95"},
		{"trailing-stop", []any{10, 2.5}, "TRAIL", "0", "2.5"},
		{"StopLimit", []any{10, 100, 98}, "STP LMT", "100", "98"},
	}
	for _, tt := range tests {
		t.Run(tt.orderType, func(t *testing.T) {
			o, err := BuildOrder(OrderRequest{Symbol: "AAPL", Action: OrderActionSell, OrderType: tt.orderType, Parameters: tt.params})
			require.NoError(t, err)
			assert.Equal(t, tt.code, o.OrderType)
			assert.Equal(t, OrderActionSell, o.Action)
			assert.Equal(t, "DAY", o.TimeInForce)
			assert.True(t, decimal.NewFromInt(10).Equal(o.TotalQuantity))
			assert.True(t, decimal.RequireFromString(tt.limit).Equal(o.LimitPrice), "limit %s", o.LimitPrice)
			assert.True(t, decimal.RequireFromString(tt.aux).Equal(o.AuxPrice), "aux %s", o.AuxPrice)
		})
	}
}

func TestBuildOrderErrors(t *testing.T) {
	_, err := BuildOrder(OrderRequest{OrderType: "limit"})
	assert.ErrorIs(t, err, ErrMissingParameters)

	_, err = BuildOrder(OrderRequest{OrderType: "limit", Parameters: []any{10}})
	assert.ErrorIs(t, err, ErrMissingParameters)

	_, err = BuildOrder(OrderRequest{OrderType: "market", Parameters: []any{0}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = BuildOrder(OrderRequest{OrderType: "market", Parameters: []any{"ten"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParamFromJSON(t *testing.T) {
	var r OrderRequest
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"AAPL","action":"BUY","type":"limit","parameters":[100,"150.25"]}`), &r))

	qty, err := r.Param(0)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(qty))
	price, err := r.Param(1)
	require.NoError(t, err)
	assert.Equal(t, "150.25", price.String())
}

func TestCloneDoesNotAlias(t *testing.T) {
	capital := decimal.NewFromInt(1000)
	r := OrderRequest{Parameters: []any{1, 2}, ExitParams: &ExitParams{EntryPrice: decimal.NewFromInt(5)}, Capital: &capital}
	c := r.Clone()
	c.Parameters[0] = 99
	c.ExitParams.EntryPrice = decimal.NewFromInt(6)

	assert.Equal(t, 1, r.Parameters[0])
	assert.True(t, decimal.NewFromInt(5).Equal(r.ExitParams.EntryPrice))
}

func TestNewSaleProfitIsEntryMinusExit(t *testing.T) {
	capital := decimal.NewFromInt(2500)
	r := OrderRequest{
		Symbol:    "AAPL",
		ExitTrade: true,
		Capital:   &capital,
		ExitParams: &ExitParams{
			EntryPrice: decimal.RequireFromString("101.10"),
			EntryTime:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			ExitPrice:  decimal.RequireFromString("100.05"),
			ExitTime:   time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	sale := NewSale(r)
	require.NotNil(t, sale)
	assert.Equal(t, "1.05", sale.Profit.String())
	assert.True(t, capital.Equal(sale.Capital))

	r.ExitTrade = false
	assert.Nil(t, NewSale(r))
	r.ExitTrade, r.ExitParams = true, nil
	assert.Nil(t, NewSale(r))
}

func TestNewSaleRecord(t *testing.T) {
	assert.Nil(t, NewSaleRecord(OrderFilledEvent{}))

	ev := OrderFilledEvent{
		Sale:  &Sale{Symbol: "AAPL", Profit: decimal.NewFromInt(3)},
		Order: OpenOrderEntry{OrderID: 7, Order: Order{PermID: 77}},
	}
	rec := NewSaleRecord(ev)
	require.NotNil(t, rec)
	assert.Equal(t, int64(7), rec.OrderID)
	assert.Equal(t, int64(77), rec.PermID)
	assert.Equal(t, "sales", rec.TableName())
}

func TestOrderStateMerge(t *testing.T) {
	s := OrderState{Status: OrderStatusSubmitted, Remaining: decimal.NewFromInt(10)}
	s.Merge(OrderState{Status: OrderStatusPartiallyFilled, Filled: decimal.NewFromInt(4), Remaining: decimal.NewFromInt(6)})
	assert.Equal(t, OrderStatusPartiallyFilled, s.Status)

	s.Merge(OrderState{Status: OrderStatusFilled, Filled: decimal.NewFromInt(10)})
	assert.True(t, s.Remaining.IsZero())
	assert.True(t, s.Status.IsTerminal())
	assert.False(t, OrderStatusPendingCancel.IsTerminal())
	assert.False(t, OrderStatusInactive.IsTerminal())
}
