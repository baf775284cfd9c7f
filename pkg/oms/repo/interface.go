package repo

import (
	"context"

	"github.com/joripage/stock-oms/pkg/oms/model"
)

type ISale interface {
	// Create stores record unless a sale for the same order already exists;
	// stored reports whether a row was written.
	Create(ctx context.Context, record *model.SaleRecord) (stored bool, err error)
	BulkCreate(ctx context.Context, records []*model.SaleRecord) ([]*model.SaleRecord, error)
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]*model.SaleRecord, error)
}
