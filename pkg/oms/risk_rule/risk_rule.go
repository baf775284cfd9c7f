package riskrule

import "github.com/joripage/stock-oms/pkg/oms/model"

// Input is everything a rule may look at. Rules must not modify it.
type Input struct {
	Request    model.OrderRequest
	OpenOrders []model.OpenOrderEntry
	Positions  []model.Position
}

type RiskRule interface {
	Name() string
	Check(in *Input) error
}

// Guard applies its rules in order and stops at the first rejection.
type Guard struct {
	rules []RiskRule
}

func NewGuard(rules ...RiskRule) *Guard {
	return &Guard{rules: rules}
}

// DefaultGuard holds the mandatory rules: symbol, duplicate order, position
// conflict. Extra rules run after them.
func DefaultGuard(extra ...RiskRule) *Guard {
	rules := []RiskRule{SymbolRule{}, DuplicateOrderRule{}, PositionRule{}}
	return NewGuard(append(rules, extra...)...)
}

func (g *Guard) Check(in *Input) error {
	for _, r := range g.rules {
		if err := r.Check(in); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guard) Rules() []string {
	names := make([]string, 0, len(g.rules))
	for _, r := range g.rules {
		names = append(names, r.Name())
	}
	return names
}
