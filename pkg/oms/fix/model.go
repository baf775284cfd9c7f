package fixgateway

import (
	"time"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/quickfixgo/enum"
	"github.com/shopspring/decimal"
)

// executionReport is the part of a FIX 4.4 ExecutionReport the gateway
// turns into callbacks.
type executionReport struct {
	OrderID      int64 // from ClOrdID, the identifier we issued
	BrokerID     string
	ExecType     enum.ExecType
	OrdStatus    enum.OrdStatus
	Side         enum.Side
	OrdType      enum.OrdType
	Symbol       string
	Account      string
	OrderQty     decimal.Decimal
	Price        decimal.Decimal
	StopPx       decimal.Decimal
	CumQty       decimal.Decimal
	LeavesQty    decimal.Decimal
	AvgPx        decimal.Decimal
	LastPx       decimal.Decimal
	TimeInForce  enum.TimeInForce
	Text         string
	TransactTime time.Time
}

// trackedOrder is the gateway's own view of an order, replayed on
// RequestAllOpenOrders.
type trackedOrder struct {
	contract model.Contract
	order    model.Order
	state    model.OrderState
}
