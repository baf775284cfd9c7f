package riskrule

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/shopspring/decimal"
)

type tickSizeConfig struct {
	MaxPrice decimal.Decimal `json:"maxPrice"` // 0 = no limit
	Step     decimal.Decimal `json:"step"`
}

// TickSizeRule holds price steps per symbol, tiered by price. The "*" entry
// applies to symbols without their own tiers.
type TickSizeRule struct {
	Config map[string][]tickSizeConfig
}

func NewTickSizeRuleFromFile(path string) (*TickSizeRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg map[string][]tickSizeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tick size file %s: %w", path, err)
	}

	return &TickSizeRule{Config: cfg}, nil
}

func (r *TickSizeRule) Name() string { return "tick_size" }

func (r *TickSizeRule) Check(in *Input) error {
	tiers, ok := r.Config[in.Request.Symbol]
	if !ok {
		if tiers, ok = r.Config["*"]; !ok {
			return nil
		}
	}

	order, err := model.BuildOrder(in.Request)
	if err != nil {
		return err
	}
	price, ok := order.ReferencePrice()
	if !ok {
		return nil
	}

	for _, tier := range tiers {
		if tier.MaxPrice.IsZero() || price.LessThanOrEqual(tier.MaxPrice) {
			if tier.Step.IsPositive() && !price.Mod(tier.Step).IsZero() {
				return fmt.Errorf("%w: price %s is not a multiple of tick %s",
					model.ErrInvalidRequest, price, tier.Step)
			}
			return nil
		}
	}

	return nil
}
