package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is the realized result of an exit trade. Never mutated after it is
// emitted.
type Sale struct {
	Symbol     string          `json:"symbol"`
	Capital    decimal.Decimal `json:"capital"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	EntryTime  time.Time       `json:"entryTime"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	ExitTime   time.Time       `json:"exitTime"`
	Profit     decimal.Decimal `json:"profit"`
}

// NewSale builds the sale for an exit request; profit = entryPrice - exitPrice.
// Returns nil when the request is not an exit or carries no exit parameters.
func NewSale(r OrderRequest) *Sale {
	if !r.ExitTrade || r.ExitParams == nil {
		return nil
	}
	p := r.ExitParams
	sale := &Sale{
		Symbol:     r.Symbol,
		EntryPrice: p.EntryPrice,
		EntryTime:  p.EntryTime,
		ExitPrice:  p.ExitPrice,
		ExitTime:   p.ExitTime,
		Profit:     p.EntryPrice.Sub(p.ExitPrice),
	}
	if r.Capital != nil {
		sale.Capital = *r.Capital
	}
	return sale
}

// SaleRecord is the journal row for a sale.
type SaleRecord struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	OrderID    int64           `gorm:"column:order_id;uniqueIndex"`
	PermID     int64           `gorm:"column:perm_id"`
	Symbol     string          `gorm:"column:symbol;index"`
	Capital    decimal.Decimal `gorm:"column:capital;type:numeric"`
	EntryPrice decimal.Decimal `gorm:"column:entry_price;type:numeric"`
	EntryTime  time.Time       `gorm:"column:entry_time"`
	ExitPrice  decimal.Decimal `gorm:"column:exit_price;type:numeric"`
	ExitTime   time.Time       `gorm:"column:exit_time"`
	Profit     decimal.Decimal `gorm:"column:profit;type:numeric"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
}

func (SaleRecord) TableName() string { return "sales" }

func NewSaleRecord(ev OrderFilledEvent) *SaleRecord {
	if ev.Sale == nil {
		return nil
	}
	s := ev.Sale
	return &SaleRecord{
		OrderID:    ev.Order.OrderID,
		PermID:     ev.Order.Order.PermID,
		Symbol:     s.Symbol,
		Capital:    s.Capital,
		EntryPrice: s.EntryPrice,
		EntryTime:  s.EntryTime,
		ExitPrice:  s.ExitPrice,
		ExitTime:   s.ExitTime,
		Profit:     s.Profit,
	}
}
