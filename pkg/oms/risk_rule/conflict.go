package riskrule

import (
	"fmt"
	"strings"

	"github.com/joripage/stock-oms/pkg/oms/model"
)

type SymbolRule struct{}

func (SymbolRule) Name() string { return "symbol" }

func (SymbolRule) Check(in *Input) error {
	if strings.TrimSpace(in.Request.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", model.ErrInvalidRequest)
	}
	return nil
}

// DuplicateOrderRule rejects a request when an open order has the same
// action and symbol. The order's status is deliberately not consulted.
type DuplicateOrderRule struct{}

func (DuplicateOrderRule) Name() string { return "duplicate_order" }

func (DuplicateOrderRule) Check(in *Input) error {
	for _, o := range in.OpenOrders {
		if o.Action() == in.Request.Action && o.Symbol() == in.Request.Symbol {
			return fmt.Errorf("%w: %s %s already open as order %d (%s)",
				model.ErrDuplicateOrder, o.Action(), o.Symbol(), o.OrderID, o.Status())
		}
	}
	return nil
}

// PositionRule rejects a non-exit request for a symbol that already has a
// position. Exit requests always pass.
type PositionRule struct{}

func (PositionRule) Name() string { return "position_conflict" }

func (PositionRule) Check(in *Input) error {
	if in.Request.ExitTrade {
		return nil
	}
	for _, p := range in.Positions {
		if p.Symbol == in.Request.Symbol {
			return fmt.Errorf("%w: %s holds position %s",
				model.ErrPositionConflict, p.Symbol, p.Position.String())
		}
	}
	return nil
}
