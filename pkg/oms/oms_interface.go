package oms

import (
	"context"

	"github.com/joripage/stock-oms/pkg/oms/model"
)

// IOMS is what the HTTP API and the command consumer need from the
// coordinator.
type IOMS interface {
	Enqueue(ctx context.Context, req model.OrderRequest) (*Ticket, error)
	Await(ctx context.Context, ticket *Ticket) (model.Placement, error)
	Cancel(ctx context.Context, ref string) error
	IsActive() bool

	OpenOrders(ctx context.Context) ([]model.OpenOrderEntry, error)
	Correlations(ctx context.Context) ([]model.TickerCorrelation, error)
	Pending(ctx context.Context) ([]PendingRequest, error)
	Status(ctx context.Context) (Status, error)
}

var _ IOMS = (*OMS)(nil)
