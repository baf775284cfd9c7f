package oms

import (
	"context"

	"github.com/joripage/stock-oms/pkg/oms/model"
)

// Gateway is the broker connection. Its methods only issue requests; answers
// come back through the GatewayHandler passed to Start, on the gateway's own
// goroutines. A Gateway must not call the handler from inside one of its own
// methods.
type Gateway interface {
	Start(ctx context.Context, handler GatewayHandler) error

	// RequestNextIdentifier asks for one fresh order id, delivered through
	// OnIdentifierGranted.
	RequestNextIdentifier(ctx context.Context) error
	SubmitOrder(ctx context.Context, id int64, contract model.Contract, order model.Order) error
	// RequestAllOpenOrders replays every open order through OnOpenOrder and
	// finishes with OnOpenOrderEnd.
	RequestAllOpenOrders(ctx context.Context) error
}

// GatewayHandler receives broker callbacks. Implemented by OMS.
type GatewayHandler interface {
	OnIdentifierGranted(id int64)
	OnOpenOrder(orderID int64, contract model.Contract, order model.Order, state model.OrderState)
	OnOrderStatus(update model.OrderStatusUpdate)
	OnOpenOrderEnd()
}

type PositionTracker interface {
	Positions(ctx context.Context) ([]model.Position, error)
}

type EventBus interface {
	Publish(ctx context.Context, topic, key string, v any) error
}
