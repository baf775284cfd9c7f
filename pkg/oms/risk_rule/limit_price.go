package riskrule

import (
	"fmt"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/shopspring/decimal"
)

type PriceBand struct {
	Floor decimal.Decimal `yaml:"floor" json:"floor"`
	Ceil  decimal.Decimal `yaml:"ceil" json:"ceil"`
}

// LimitPriceRule keeps the reference price of price-bearing orders inside a
// per-symbol band. Symbols without a band and market orders pass.
type LimitPriceRule struct {
	bands map[string]PriceBand
}

func NewLimitPriceRule(bands map[string]PriceBand) *LimitPriceRule {
	return &LimitPriceRule{bands: bands}
}

func (r *LimitPriceRule) Name() string { return "limit_price" }

func (r *LimitPriceRule) Check(in *Input) error {
	band, ok := r.bands[in.Request.Symbol]
	if !ok {
		return nil
	}
	order, err := model.BuildOrder(in.Request)
	if err != nil {
		return err
	}
	price, ok := order.ReferencePrice()
	if !ok {
		return nil
	}
	if (!band.Ceil.IsZero() && price.GreaterThan(band.Ceil)) || price.LessThan(band.Floor) {
		return fmt.Errorf("%w: price %s outside [%s, %s] for %s",
			model.ErrInvalidRequest, price, band.Floor, band.Ceil, in.Request.Symbol)
	}
	return nil
}
