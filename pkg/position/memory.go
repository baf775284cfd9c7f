// Package position keeps the portfolio view the conflict guard checks
// against.
package position

import (
	"context"
	"sort"
	"sync"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/shopspring/decimal"
)

// MemoryTracker holds the last snapshot pushed by a gateway. Positions blocks
// until the first snapshot arrives or ctx ends.
type MemoryTracker struct {
	mu        sync.RWMutex
	positions map[string]model.Position
	ready     chan struct{}
	readyOnce sync.Once
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		positions: map[string]model.Position{},
		ready:     make(chan struct{}),
	}
}

// Update replaces the snapshot.
func (t *MemoryTracker) Update(positions []model.Position) {
	t.mu.Lock()
	t.positions = make(map[string]model.Position, len(positions))
	for _, p := range positions {
		t.positions[p.Symbol] = p
	}
	t.mu.Unlock()
	t.markReady()
}

// Apply books a fill: qty is signed (negative for sells). Average cost moves
// only when the position grows.
func (t *MemoryTracker) Apply(symbol string, qty, price decimal.Decimal) model.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := applyFill(t.positions[symbol], symbol, qty, price)
	t.positions[symbol] = p
	t.markReady()
	return p
}

func (t *MemoryTracker) markReady() {
	t.readyOnce.Do(func() { close(t.ready) })
}

func (t *MemoryTracker) Positions(ctx context.Context) ([]model.Position, error) {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return sorted(t.positions), nil
}

func sorted(m map[string]model.Position) []model.Position {
	out := make([]model.Position, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func applyFill(p model.Position, symbol string, qty, price decimal.Decimal) model.Position {
	p.Symbol = symbol
	next := p.Position.Add(qty)

	reducing := p.Position.Sign() != 0 && p.Position.Sign() != qty.Sign()
	if reducing {
		closed := decimal.Min(qty.Abs(), p.Position.Abs())
		pnl := price.Sub(p.AverageCost).Mul(closed)
		if p.Position.IsNegative() {
			pnl = pnl.Neg()
		}
		p.RealizedPNL = p.RealizedPNL.Add(pnl)
	}

	switch {
	case next.IsZero():
		p.AverageCost = decimal.Zero
	case !reducing:
		cost := p.AverageCost.Mul(p.Position.Abs()).Add(price.Mul(qty.Abs()))
		p.AverageCost = cost.Div(next.Abs())
	case p.Position.Sign() != next.Sign():
		// flipped through zero: the remainder was opened at price
		p.AverageCost = price
	}

	p.Position = next
	p.MarketPrice = price
	p.MarketValue = price.Mul(next)
	p.UnrealizedPNL = price.Sub(p.AverageCost).Mul(next)
	return p
}
