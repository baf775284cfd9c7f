// Package paper is an in-memory broker gateway. Orders are acknowledged and
// then filled at their limit (or last known) price after a delay, and every
// fill is applied to a position book. It serves dry runs and tests.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joripage/stock-oms/pkg/oms"
	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoPrice      = errors.New("no price available")
	ErrUnknownOrder = errors.New("unknown order")
)

type Config struct {
	// FillDelay is the time between acknowledgement and fill. Negative
	// disables automatic fills; use Fill.
	FillDelay time.Duration `yaml:"fill_delay"`
	StartID   int64         `yaml:"start_id"`
	Account   string        `yaml:"account"`
}

// FillSink receives every fill. position.MemoryTracker satisfies it.
type FillSink interface {
	Apply(symbol string, qty, price decimal.Decimal) model.Position
}

type paperOrder struct {
	contract model.Contract
	order    model.Order
	state    model.OrderState
	price    decimal.Decimal
}

type Gateway struct {
	cfg    Config
	sink   FillSink
	logger *zap.Logger

	ctx     context.Context
	handler oms.GatewayHandler
	nextID  atomic.Int64
	permID  atomic.Int64

	mu     sync.Mutex
	orders map[int64]*paperOrder
	prices map[string]decimal.Decimal
}

var _ oms.Gateway = (*Gateway)(nil)

func New(cfg Config, sink FillSink, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.L()
	}
	if cfg.StartID <= 0 {
		cfg.StartID = 1
	}
	g := &Gateway{
		cfg:    cfg,
		sink:   sink,
		logger: logger.Named("paper"),
		orders: make(map[int64]*paperOrder),
		prices: make(map[string]decimal.Decimal),
	}
	g.nextID.Store(cfg.StartID - 1)
	g.permID.Store(1_000_000)
	return g
}

// SetPrice records the last trade price used by market and trailing orders.
func (g *Gateway) SetPrice(symbol string, price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

func (g *Gateway) Start(ctx context.Context, handler oms.GatewayHandler) error {
	g.ctx = ctx
	g.handler = handler
	g.logger.Info("paper gateway started", zap.Duration("fill_delay", g.cfg.FillDelay))
	return nil
}

func (g *Gateway) RequestNextIdentifier(ctx context.Context) error {
	id := g.nextID.Add(1)
	go g.handler.OnIdentifierGranted(id)
	return nil
}

func (g *Gateway) SubmitOrder(ctx context.Context, id int64, contract model.Contract, order model.Order) error {
	g.mu.Lock()
	if _, ok := g.orders[id]; ok {
		g.mu.Unlock()
		return fmt.Errorf("order id %d already used", id)
	}
	price, err := g.executionPrice(contract.Symbol, order)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if order.Account == "" {
		order.Account = g.cfg.Account
	}
	order.PermID = g.permID.Add(1)
	o := &paperOrder{
		contract: contract,
		order:    order,
		price:    price,
		state:    model.OrderState{Status: model.OrderStatusSubmitted, Remaining: order.TotalQuantity},
	}
	g.orders[id] = o
	g.mu.Unlock()

	g.logger.Info("order accepted",
		zap.Int64("order_id", id),
		zap.String("symbol", contract.Symbol),
		zap.String("action", string(order.Action)),
		zap.String("qty", order.TotalQuantity.String()),
		zap.String("price", price.String()),
	)

	go g.lifecycle(id)
	return nil
}

// executionPrice must be called with mu held.
func (g *Gateway) executionPrice(symbol string, order model.Order) (decimal.Decimal, error) {
	switch order.OrderType {
	case "LMT", "STP LMT", "LOC":
		return order.LimitPrice, nil
	case "STP":
		return order.AuxPrice, nil
	}
	if p, ok := g.prices[symbol]; ok {
		return p, nil
	}
	if !order.LimitPrice.IsZero() {
		return order.LimitPrice, nil
	}
	return decimal.Zero, fmt.Errorf("%w for %s", ErrNoPrice, symbol)
}

func (g *Gateway) lifecycle(id int64) {
	g.report(id)
	if g.cfg.FillDelay < 0 {
		return
	}
	timer := time.NewTimer(g.cfg.FillDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		_ = g.Fill(id)
	case <-g.ctx.Done():
	}
}

// Fill fills the whole remaining quantity of an open order.
func (g *Gateway) Fill(id int64) error {
	g.mu.Lock()
	o, ok := g.orders[id]
	if !ok || o.state.Status.IsTerminal() {
		g.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownOrder, id)
	}
	o.state.Status = model.OrderStatusFilled
	o.state.Filled = o.order.TotalQuantity
	o.state.Remaining = decimal.Zero
	o.state.AvgFillPrice = o.price
	o.state.LastFillPrice = o.price
	symbol, qty := o.contract.Symbol, o.order.TotalQuantity
	if o.order.Action == model.OrderActionSell {
		qty = qty.Neg()
	}
	g.mu.Unlock()

	if g.sink != nil {
		pos := g.sink.Apply(symbol, qty, o.price)
		g.logger.Info("position updated",
			zap.String("symbol", symbol),
			zap.String("position", pos.Position.String()),
			zap.String("realized_pnl", pos.RealizedPNL.String()),
		)
	}
	g.report(id)
	return nil
}

// Cancel cancels an open order.
func (g *Gateway) Cancel(id int64) error {
	g.mu.Lock()
	o, ok := g.orders[id]
	if !ok || o.state.Status.IsTerminal() {
		g.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownOrder, id)
	}
	o.state.Status = model.OrderStatusCancelled
	g.mu.Unlock()
	g.report(id)
	return nil
}

func (g *Gateway) report(id int64) {
	g.mu.Lock()
	o := *g.orders[id]
	g.mu.Unlock()

	g.handler.OnOpenOrder(id, o.contract, o.order, o.state)
	g.handler.OnOrderStatus(model.OrderStatusUpdate{
		OrderID:       id,
		Status:        o.state.Status,
		Filled:        o.state.Filled,
		Remaining:     o.state.Remaining,
		AvgFillPrice:  o.state.AvgFillPrice,
		PermID:        o.order.PermID,
		LastFillPrice: o.state.LastFillPrice,
	})
}

func (g *Gateway) RequestAllOpenOrders(ctx context.Context) error {
	g.mu.Lock()
	ids := make([]int64, 0, len(g.orders))
	for id, o := range g.orders {
		if !o.state.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	open := make([]paperOrder, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		open[i] = *g.orders[id]
	}
	g.mu.Unlock()

	go func() {
		for i, id := range ids {
			g.handler.OnOpenOrder(id, open[i].contract, open[i].order, open[i].state)
		}
		g.handler.OnOpenOrderEnd()
	}()
	return nil
}
