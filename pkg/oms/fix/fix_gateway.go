package fixgateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joripage/stock-oms/pkg/oms"
	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"
)

var (
	ErrNotLoggedOn = errors.New("FIX session not logged on")
	ErrNotStarted  = errors.New("FIX gateway not started")
)

type FixGatewayConfig struct {
	ConfigFilepath string        `yaml:"config_filepath"`
	Account        string        `yaml:"account"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	LogonTimeout   time.Duration `yaml:"logon_timeout"`
}

// FixGateway is an oms.Gateway speaking FIX 4.4 to a broker as initiator.
// Callbacks are delivered from the application dispatcher goroutine.
type FixGateway struct {
	cfg    *FixGatewayConfig
	ids    IdentifierSource
	logger *zap.Logger

	app     *Application
	handler oms.GatewayHandler

	mu     sync.Mutex
	orders map[int64]*trackedOrder
}

func NewFixGateway(cfg *FixGatewayConfig, ids IdentifierSource, logger *zap.Logger) *FixGateway {
	if logger == nil {
		logger = zap.L()
	}
	if ids == nil {
		ids = NewLocalIdentifierSource(0)
	}
	return &FixGateway{
		cfg:    cfg,
		ids:    ids,
		logger: logger.Named("fix"),
		orders: make(map[int64]*trackedOrder),
	}
}

var _ oms.Gateway = (*FixGateway)(nil)

// Start connects the initiator and waits up to LogonTimeout for the logon.
// The session is torn down when ctx ends.
func (g *FixGateway) Start(ctx context.Context, handler oms.GatewayHandler) error {
	settings, err := loadSettings(g.cfg.ConfigFilepath)
	if err != nil {
		return err
	}

	g.handler = handler
	g.app = newApplication(AppConfig{
		enableQueue: true,
		username:    g.cfg.Username,
		password:    g.cfg.Password,
	}, g.logger, g.onReport)

	initiator, err := startInitiator(g.app, settings)
	if err != nil {
		g.app.stop()
		return err
	}

	go func() {
		<-ctx.Done()
		initiator.Stop()
		g.app.stop()
	}()

	if g.cfg.LogonTimeout <= 0 {
		return nil
	}
	deadline := time.NewTimer(g.cfg.LogonTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, ok := g.app.Session(); ok {
			return nil
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrNotLoggedOn, g.cfg.LogonTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *FixGateway) RequestNextIdentifier(ctx context.Context) error {
	if g.handler == nil {
		return ErrNotStarted
	}
	go func() {
		id, err := g.ids.Next(context.WithoutCancel(ctx))
		if err != nil {
			// the coordinator times the request out
			g.logger.Error("next order id", zap.Error(err))
			return
		}
		g.handler.OnIdentifierGranted(id)
	}()
	return nil
}

func (g *FixGateway) SubmitOrder(ctx context.Context, id int64, contract model.Contract, order model.Order) error {
	if g.app == nil {
		return ErrNotStarted
	}
	sessionID, ok := g.app.Session()
	if !ok {
		return ErrNotLoggedOn
	}

	msg, err := newOrderSingle(id, contract, order, g.cfg.Account)
	if err != nil {
		return err
	}

	g.track(id, contract, order)
	if err := quickfix.SendToTarget(msg, sessionID); err != nil {
		g.untrack(id)
		return fmt.Errorf("send NewOrderSingle %d: %w", id, err)
	}
	g.logger.Info("NewOrderSingle sent",
		zap.Int64("cl_ord_id", id),
		zap.String("symbol", contract.Symbol),
		zap.String("side", string(order.Action)),
		zap.String("qty", order.TotalQuantity.String()),
	)
	return nil
}

// RequestAllOpenOrders replays the orders this gateway knows to be open.
func (g *FixGateway) RequestAllOpenOrders(ctx context.Context) error {
	if g.handler == nil {
		return ErrNotStarted
	}
	snapshot := g.openOrders()
	go func() {
		for _, o := range snapshot {
			g.handler.OnOpenOrder(o.id, o.contract, o.order, o.state)
		}
		g.handler.OnOpenOrderEnd()
	}()
	return nil
}

type openOrder struct {
	id int64
	trackedOrder
}

func (g *FixGateway) openOrders() []openOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]openOrder, 0, len(g.orders))
	for id, o := range g.orders {
		out = append(out, openOrder{id: id, trackedOrder: *o})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (g *FixGateway) track(id int64, contract model.Contract, order model.Order) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[id] = &trackedOrder{
		contract: contract,
		order:    order,
		state:    model.OrderState{Status: model.OrderStatusPendingSubmit, Remaining: order.TotalQuantity},
	}
}

func (g *FixGateway) untrack(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.orders, id)
}

func (g *FixGateway) onReport(r executionReport) {
	contract, order, state, update := r.toCallbacks()

	g.mu.Lock()
	tracked, ok := g.orders[r.OrderID]
	if !ok {
		tracked = &trackedOrder{}
		g.orders[r.OrderID] = tracked
	}
	tracked.contract.Merge(contract)
	tracked.order.Merge(order)
	tracked.state.Merge(state)
	if state.Status.IsTerminal() {
		delete(g.orders, r.OrderID)
	}
	contract, order = tracked.contract, tracked.order
	g.mu.Unlock()

	g.logger.Debug("execution report",
		zap.Int64("cl_ord_id", r.OrderID),
		zap.String("broker_order_id", r.BrokerID),
		zap.String("status", string(update.Status)),
		zap.String("cum_qty", r.CumQty.String()),
	)

	if g.handler == nil {
		return
	}
	g.handler.OnOpenOrder(r.OrderID, contract, order, state)
	g.handler.OnOrderStatus(update)
}
