package model

// Payloads exchanged over the event bus.

type OpenOrdersEvent struct {
	Orders []OpenOrderEntry `json:"orders"`
}

type OrderStatusEvent struct {
	// Order is nil when the status refers to an order not in the ledger.
	Order       *OpenOrderEntry   `json:"order"`
	OrderStatus OrderStatusUpdate `json:"orderStatus"`
}

type OrderFilledEvent struct {
	Sale  *Sale          `json:"sale"`
	Order OpenOrderEntry `json:"order"`
}

type PlaceOrderCommand struct {
	Request OrderRequest `json:"request"`
}
