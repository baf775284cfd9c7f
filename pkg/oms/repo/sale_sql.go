package repo

import (
	"context"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"
)

type SaleSQLRepo struct {
	db *gorm.DB
}

func NewSaleSQLRepo(db *gorm.DB) *SaleSQLRepo {
	return &SaleSQLRepo{
		db: db,
	}
}

func (s *SaleSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Create is idempotent on order_id; bus redeliveries do not duplicate rows.
func (r *SaleSQLRepo) Create(ctx context.Context, record *model.SaleRecord) (bool, error) {
	res := r.dbWithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(record)
	return res.RowsAffected > 0, res.Error
}

func (r *SaleSQLRepo) BulkCreate(ctx context.Context, records []*model.SaleRecord) ([]*model.SaleRecord, error) {
	return records, r.dbWithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(records).Error
}

// ListBySymbol returns the latest sales first. Reads go to a replica when
// one is registered.
func (r *SaleSQLRepo) ListBySymbol(ctx context.Context, symbol string, limit int) ([]*model.SaleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*model.SaleRecord
	err := r.dbWithContext(ctx).
		Clauses(dbresolver.Read).
		Where("symbol = ?", symbol).
		Order("exit_time DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
