package model

import (
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingSubmit   OrderStatus = "PendingSubmit"
	OrderStatusPendingCancel   OrderStatus = "PendingCancel"
	OrderStatusPreSubmitted    OrderStatus = "PreSubmitted"
	OrderStatusSubmitted       OrderStatus = "Submitted"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusApiCancelled    OrderStatus = "ApiCancelled"
	OrderStatusInactive        OrderStatus = "Inactive"
)

// IsTerminal reports whether the gateway will send no further updates that
// keep the order open.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusApiCancelled:
		return true
	}
	return false
}

type OrderAction string

const (
	OrderActionBuy  OrderAction = "BUY"
	OrderActionSell OrderAction = "SELL"
)

func (a OrderAction) Valid() bool {
	return a == OrderActionBuy || a == OrderActionSell
}

// Order is the gateway's view of an order. Zero values mean "not reported".
type Order struct {
	Action        OrderAction     `json:"action,omitempty"`
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
	OrderType     string          `json:"orderType,omitempty"`
	LimitPrice    decimal.Decimal `json:"lmtPrice"`
	AuxPrice      decimal.Decimal `json:"auxPrice"`
	TimeInForce   string          `json:"tif,omitempty"`
	Account       string          `json:"account,omitempty"`
	PermID        int64           `json:"permId,omitempty"`
	ParentID      int64           `json:"parentId,omitempty"`
	ClientID      int64           `json:"clientId,omitempty"`
}

// Merge overwrites every field n reports.
func (o *Order) Merge(n Order) {
	if n.Action != "" {
		o.Action = n.Action
	}
	if !n.TotalQuantity.IsZero() {
		o.TotalQuantity = n.TotalQuantity
	}
	if n.OrderType != "" {
		o.OrderType = n.OrderType
	}
	if !n.LimitPrice.IsZero() {
		o.LimitPrice = n.LimitPrice
	}
	if !n.AuxPrice.IsZero() {
		o.AuxPrice = n.AuxPrice
	}
	if n.TimeInForce != "" {
		o.TimeInForce = n.TimeInForce
	}
	if n.Account != "" {
		o.Account = n.Account
	}
	if n.PermID != 0 {
		o.PermID = n.PermID
	}
	if n.ParentID != 0 {
		o.ParentID = n.ParentID
	}
	if n.ClientID != 0 {
		o.ClientID = n.ClientID
	}
}

type Contract struct {
	ConID    int64  `json:"conId,omitempty"`
	Symbol   string `json:"symbol"`
	SecType  string `json:"secType,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Currency string `json:"currency,omitempty"`
}

func (c *Contract) Merge(n Contract) {
	if n.ConID != 0 {
		c.ConID = n.ConID
	}
	if n.Symbol != "" {
		c.Symbol = n.Symbol
	}
	if n.SecType != "" {
		c.SecType = n.SecType
	}
	if n.Exchange != "" {
		c.Exchange = n.Exchange
	}
	if n.Currency != "" {
		c.Currency = n.Currency
	}
}

// StockContract is the contract used for every submission.
func StockContract(symbol string) Contract {
	return Contract{
		Symbol:   symbol,
		SecType:  "STK",
		Exchange: "SMART",
		Currency: "USD",
	}
}

type OrderState struct {
	Status        OrderStatus     `json:"status"`
	Filled        decimal.Decimal `json:"filled"`
	Remaining     decimal.Decimal `json:"remaining"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	LastFillPrice decimal.Decimal `json:"lastFillPrice"`
	Commission    decimal.Decimal `json:"commission"`
	WhyHeld       string          `json:"whyHeld,omitempty"`
	WarningText   string          `json:"warningText,omitempty"`
}

// Merge applies n on top of s. Status always moves when reported; fill
// figures only when non-zero because a gateway may omit them.
func (s *OrderState) Merge(n OrderState) {
	if n.Status != "" {
		s.Status = n.Status
	}
	if !n.Filled.IsZero() {
		s.Filled = n.Filled
	}
	if !n.Remaining.IsZero() || n.Status == OrderStatusFilled {
		s.Remaining = n.Remaining
	}
	if !n.AvgFillPrice.IsZero() {
		s.AvgFillPrice = n.AvgFillPrice
	}
	if !n.LastFillPrice.IsZero() {
		s.LastFillPrice = n.LastFillPrice
	}
	if !n.Commission.IsZero() {
		s.Commission = n.Commission
	}
	if n.WhyHeld != "" {
		s.WhyHeld = n.WhyHeld
	}
	if n.WarningText != "" {
		s.WarningText = n.WarningText
	}
}

// OpenOrderEntry is one row of the open order ledger, keyed by OrderID.
type OpenOrderEntry struct {
	OrderID  int64      `json:"orderId"`
	Order    Order      `json:"order"`
	Contract Contract   `json:"contract"`
	State    OrderState `json:"orderState"`
}

func (e OpenOrderEntry) Symbol() string      { return e.Contract.Symbol }
func (e OpenOrderEntry) Action() OrderAction { return e.Order.Action }
func (e OpenOrderEntry) Status() OrderStatus { return e.State.Status }

// OrderStatusUpdate mirrors the gateway's order status callback.
type OrderStatusUpdate struct {
	OrderID       int64           `json:"orderId"`
	Status        OrderStatus     `json:"status"`
	Filled        decimal.Decimal `json:"filled"`
	Remaining     decimal.Decimal `json:"remaining"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	PermID        int64           `json:"permId,omitempty"`
	ParentID      int64           `json:"parentId,omitempty"`
	LastFillPrice decimal.Decimal `json:"lastFillPrice"`
	ClientID      int64           `json:"clientId,omitempty"`
	WhyHeld       string          `json:"whyHeld,omitempty"`
}

// State returns the part of the update that merges into a ledger entry.
func (u OrderStatusUpdate) State() OrderState {
	return OrderState{
		Status:        u.Status,
		Filled:        u.Filled,
		Remaining:     u.Remaining,
		AvgFillPrice:  u.AvgFillPrice,
		LastFillPrice: u.LastFillPrice,
		WhyHeld:       u.WhyHeld,
	}
}
