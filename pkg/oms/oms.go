package oms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/joripage/stock-oms/pkg/eventbus"
	"github.com/joripage/stock-oms/pkg/logging"
	"github.com/joripage/stock-oms/pkg/metrics"
	"github.com/joripage/stock-oms/pkg/oms/model"
	riskrule "github.com/joripage/stock-oms/pkg/oms/risk_rule"
	"go.uber.org/zap"
)

type Config struct {
	// SettleDelay paces submissions after an identifier is granted. Zero
	// submits immediately.
	SettleDelay       time.Duration `yaml:"settle_delay"`
	IdentifierTimeout time.Duration `yaml:"identifier_timeout"`
	QueryTimeout      time.Duration `yaml:"query_timeout"`
	InboxSize         int           `yaml:"inbox_size"`
	// Retention is how long terminal correlations are kept for late
	// callbacks.
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:       time.Second,
		IdentifierTimeout: 10 * time.Second,
		QueryTimeout:      5 * time.Second,
		InboxSize:         1024,
		Retention:         10 * time.Minute,
		CleanupInterval:   time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IdentifierTimeout <= 0 {
		c.IdentifierTimeout = d.IdentifierTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = d.QueryTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

type Option func(*OMS)

func WithConfig(cfg Config) Option { return func(s *OMS) { s.cfg = cfg } }

func WithPositionTracker(t PositionTracker) Option { return func(s *OMS) { s.positions = t } }

func WithEventBus(b EventBus) Option { return func(s *OMS) { s.bus = b } }

func WithGuard(g *riskrule.Guard) Option { return func(s *OMS) { s.guard = g } }

func WithLogger(l *zap.Logger) Option { return func(s *OMS) { s.logger = l } }

// WithClock replaces time.Now for correlation and retention bookkeeping.
func WithClock(now func() time.Time) Option { return func(s *OMS) { s.now = now } }

// OMS coordinates order submission against a single broker gateway. Every
// piece of mutable state below the loop marker is owned by the dispatch
// loop; gateway callbacks and API calls reach it as messages on inbox.
type OMS struct {
	cfg       Config
	gateway   Gateway
	positions PositionTracker
	bus       EventBus
	guard     *riskrule.Guard
	logger    *zap.Logger
	now       func() time.Time

	inbox     chan any
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	active    atomic.Bool

	// loop
	ledger         *Ledger
	correlator     *Correlator
	queue          deque.Deque[*submission]
	phase          phase
	settling       *submission
	identSeq       uint64
	lastIdentifier int64
	refreshPending bool
	refreshSeq     uint64
	waiters        []chan []model.OpenOrderEntry
}

func New(gateway Gateway, opts ...Option) *OMS {
	s := &OMS{
		cfg:        DefaultConfig(),
		gateway:    gateway,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		ledger:     NewLedger(),
		correlator: NewCorrelator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.withDefaults()
	if s.guard == nil {
		s.guard = riskrule.DefaultGuard()
	}
	if s.logger == nil {
		s.logger = zap.L()
	}
	s.logger = s.logger.Named("oms")
	s.inbox = make(chan any, s.cfg.InboxSize)
	return s
}

// Start runs the dispatch loop, connects the gateway and asks for the
// current open orders.
func (s *OMS) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		go s.run(ctx)
		go s.startCleaner(ctx, s.cfg.CleanupInterval)

		if err = s.gateway.Start(ctx, s); err != nil {
			s.stopOnce.Do(func() { close(s.stopCh) })
			<-s.doneCh
			return
		}
		s.send(refreshMsg{})
		s.logger.Info("order coordinator started",
			zap.Duration("settle_delay", s.cfg.SettleDelay),
			zap.Strings("rules", s.guard.Rules()),
		)
	})
	return err
}

// Stop ends the loop. Requests still queued fail with ErrStopped.
func (s *OMS) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	// never started
	s.startOnce.Do(func() { close(s.doneCh) })
	<-s.doneCh
}

// IsActive reports whether the gateway has delivered at least one open order.
func (s *OMS) IsActive() bool { return s.active.Load() }

type (
	enqueueMsg struct {
		req       model.OrderRequest
		positions []model.Position
		checks    Checks
		reply     chan enqueueReply
	}
	enqueueReply struct {
		ticket *Ticket
		err    error
	}
	cancelMsg struct {
		ref   string
		reply chan error
	}
	identifierMsg struct{ id int64 }
	openOrderMsg  struct {
		orderID  int64
		contract model.Contract
		order    model.Order
		state    model.OrderState
	}
	statusMsg            struct{ update model.OrderStatusUpdate }
	openOrderEndMsg      struct{}
	refreshMsg           struct{}
	refreshTimeoutMsg    struct{ seq uint64 }
	submitDueMsg         struct{ sub *submission }
	identifierTimeoutMsg struct{ seq uint64 }
	awaitOpenOrdersMsg   struct{ reply chan []model.OpenOrderEntry }
	queryMsg             struct {
		fn   func()
		done chan struct{}
	}
	cleanupMsg struct{}
)

func (s *OMS) run(ctx context.Context) {
	defer close(s.doneCh)
	defer s.drain()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case msg := <-s.inbox:
			s.dispatch(ctx, msg)
		}
	}
}

func (s *OMS) dispatch(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case enqueueMsg:
		s.handleEnqueue(ctx, m)
	case cancelMsg:
		m.reply <- s.handleCancel(ctx, m.ref)
	case identifierMsg:
		s.handleIdentifier(ctx, m.id)
	case submitDueMsg:
		s.submit(ctx, m.sub)
	case identifierTimeoutMsg:
		s.handleIdentifierTimeout(ctx, m.seq)
	case openOrderMsg:
		s.handleOpenOrder(ctx, m)
	case statusMsg:
		s.handleOrderStatus(ctx, m.update)
	case openOrderEndMsg:
		s.handleOpenOrderEnd(ctx)
	case refreshMsg:
		s.refreshOpenOrders(ctx)
	case refreshTimeoutMsg:
		s.handleRefreshTimeout(m.seq)
	case awaitOpenOrdersMsg:
		s.handleAwaitOpenOrders(ctx, m)
	case queryMsg:
		m.fn()
		close(m.done)
	case cleanupMsg:
		s.cleanup()
	default:
		s.logger.Error("unknown loop message", zap.Any("msg", msg))
	}
}

// send hands msg to the loop. False once the loop has exited.
func (s *OMS) send(msg any) bool {
	select {
	case s.inbox <- msg:
		return true
	case <-s.doneCh:
		return false
	}
}

// after delivers msg to the loop once d has elapsed.
func (s *OMS) after(d time.Duration, msg any) {
	time.AfterFunc(d, func() { s.send(msg) })
}

// Gateway callbacks.

func (s *OMS) OnIdentifierGranted(id int64) {
	metrics.GatewayCallbacks.WithLabelValues("identifier").Inc()
	s.send(identifierMsg{id: id})
}

func (s *OMS) OnOpenOrder(orderID int64, contract model.Contract, order model.Order, state model.OrderState) {
	metrics.GatewayCallbacks.WithLabelValues("open_order").Inc()
	s.active.Store(true)
	s.send(openOrderMsg{orderID: orderID, contract: contract, order: order, state: state})
}

func (s *OMS) OnOrderStatus(update model.OrderStatusUpdate) {
	metrics.GatewayCallbacks.WithLabelValues("order_status").Inc()
	s.send(statusMsg{update: update})
}

func (s *OMS) OnOpenOrderEnd() {
	metrics.GatewayCallbacks.WithLabelValues("open_order_end").Inc()
	s.send(openOrderEndMsg{})
}

// Enqueue validates req, runs the conflict checks and queues it for
// submission. Rejections are returned as errors; an accepted request
// resolves through the returned Ticket.
func (s *OMS) Enqueue(ctx context.Context, req model.OrderRequest) (*Ticket, error) {
	req = req.Clone()
	if req.Ref == "" {
		req.Ref = uuid.NewString()
	}
	log := logging.FromContext(ctx, s.logger).With(
		zap.String("ref", req.Ref),
		zap.String("symbol", req.Symbol),
		zap.String("action", string(req.Action)),
	)
	log.Info("place order request",
		zap.String("type", req.OrderType),
		zap.Any("parameters", req.Parameters),
		zap.Bool("exit_trade", req.ExitTrade),
	)

	if err := req.Validate(); err != nil {
		metrics.OrdersRejected.WithLabelValues("invalid").Inc()
		log.Warn("invalid order request", zap.Error(err))
		return nil, err
	}

	var checks Checks
	_, checks.OpenOrdersConclusive = s.awaitOpenOrders(ctx, log)
	positions, conclusive := s.currentPositions(ctx, log)
	checks.PositionsConclusive = conclusive
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply := make(chan enqueueReply, 1)
	if !s.send(enqueueMsg{req: req, positions: positions, checks: checks, reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case r := <-reply:
		return r.ticket, r.err
	case <-s.doneCh:
		return nil, ErrStopped
	}
}

// Place enqueues req and waits for it to be submitted. If ctx ends first the
// request is withdrawn when it has not reached the gateway yet.
func (s *OMS) Place(ctx context.Context, req model.OrderRequest) (model.Placement, error) {
	ticket, err := s.Enqueue(ctx, req)
	if err != nil {
		return model.Placement{}, err
	}
	return s.Await(ctx, ticket)
}

// Await waits for ticket to resolve. If ctx ends first the request is
// withdrawn; when it already reached the gateway its placement is returned.
func (s *OMS) Await(ctx context.Context, ticket *Ticket) (model.Placement, error) {
	p, err := ticket.Wait(ctx)
	if err == nil || ctx.Err() == nil {
		return p, err
	}
	cerr := s.Cancel(context.Background(), ticket.Ref)
	if errors.Is(cerr, ErrOrderNotFound) || errors.Is(cerr, ErrNotCancellable) {
		// reached the gateway (or failed) before the cancel was handled
		return ticket.Result()
	}
	if cerr != nil {
		s.logger.Warn("withdraw order request", zap.String("ref", ticket.Ref), zap.Error(cerr))
	}
	return p, err
}

// Cancel withdraws a request that has not been submitted yet.
func (s *OMS) Cancel(ctx context.Context, ref string) error {
	reply := make(chan error, 1)
	if !s.send(cancelMsg{ref: ref, reply: reply}) {
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return ErrStopped
	}
}

func (s *OMS) handleEnqueue(ctx context.Context, m enqueueMsg) {
	in := &riskrule.Input{
		Request:    m.req,
		OpenOrders: s.ledger.All(),
		Positions:  m.positions,
	}
	if err := s.guard.Check(in); err != nil {
		metrics.OrdersRejected.WithLabelValues(rejectionReason(err)).Inc()
		s.logger.Warn("order request rejected",
			zap.String("ref", m.req.Ref),
			zap.String("symbol", m.req.Symbol),
			zap.String("action", string(m.req.Action)),
			zap.Error(err),
		)
		m.reply <- enqueueReply{err: err}
		return
	}

	t := newTicket(m.req.Ref, m.checks)
	s.queue.PushBack(&submission{req: m.req, ticket: t, enqueuedAt: s.now()})
	metrics.OrdersEnqueued.Inc()
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	m.reply <- enqueueReply{ticket: t}

	s.pump(ctx)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, model.ErrDuplicateOrder):
		return "duplicate"
	case errors.Is(err, model.ErrPositionConflict):
		return "position"
	case errors.Is(err, model.ErrInvalidRequest):
		return "invalid"
	}
	return "rule"
}

// awaitOpenOrders returns the ledger. An empty ledger triggers a refresh and
// waits up to QueryTimeout for the gateway to finish replaying.
func (s *OMS) awaitOpenOrders(ctx context.Context, log *zap.Logger) ([]model.OpenOrderEntry, bool) {
	reply := make(chan []model.OpenOrderEntry, 1)
	if !s.send(awaitOpenOrdersMsg{reply: reply}) {
		return nil, false
	}

	timer := time.NewTimer(s.cfg.QueryTimeout)
	defer timer.Stop()
	select {
	case orders := <-reply:
		return orders, true
	case <-timer.C:
		metrics.QueryTimeouts.WithLabelValues("open_orders").Inc()
		log.Warn("open orders refresh timed out, checking against current ledger",
			zap.Duration("timeout", s.cfg.QueryTimeout))
		return nil, false
	case <-ctx.Done():
		return nil, false
	case <-s.doneCh:
		return nil, false
	}
}

func (s *OMS) handleAwaitOpenOrders(ctx context.Context, m awaitOpenOrdersMsg) {
	if s.ledger.Len() > 0 {
		m.reply <- s.ledger.All()
		return
	}
	s.waiters = append(s.waiters, m.reply)
	s.refreshOpenOrders(ctx)
}

func (s *OMS) refreshOpenOrders(ctx context.Context) {
	if s.refreshPending {
		return
	}
	if err := s.gateway.RequestAllOpenOrders(ctx); err != nil {
		s.logger.Warn("request open orders", zap.Error(err))
		return
	}
	s.refreshPending = true
	s.refreshSeq++
	s.after(s.cfg.QueryTimeout, refreshTimeoutMsg{seq: s.refreshSeq})
}

// handleRefreshTimeout gives up on an unanswered refresh so the next query
// asks again. Its waiters have hit their own QueryTimeout by now.
func (s *OMS) handleRefreshTimeout(seq uint64) {
	if !s.refreshPending || seq != s.refreshSeq {
		return
	}
	s.logger.Warn("open orders refresh unanswered",
		zap.Duration("timeout", s.cfg.QueryTimeout), zap.Int("waiters", len(s.waiters)))
	s.refreshPending = false
	s.waiters = nil
}

// currentPositions queries the tracker with a QueryTimeout bound. Zero
// positions are dropped.
func (s *OMS) currentPositions(ctx context.Context, log *zap.Logger) ([]model.Position, bool) {
	if s.positions == nil {
		return nil, false
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	type result struct {
		positions []model.Position
		err       error
	}
	ch := make(chan result, 1)
	go func() {
		ps, err := s.positions.Positions(qctx)
		ch <- result{ps, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				metrics.QueryTimeouts.WithLabelValues("positions").Inc()
			}
			log.Warn("positions unavailable, skipping position check", zap.Error(r.err))
			return nil, false
		}
		open := r.positions[:0:0]
		for _, p := range r.positions {
			if !p.Position.IsZero() {
				open = append(open, p)
			}
		}
		return open, true
	case <-qctx.Done():
		metrics.QueryTimeouts.WithLabelValues("positions").Inc()
		log.Warn("positions query timed out, skipping position check",
			zap.Duration("timeout", s.cfg.QueryTimeout))
		return nil, false
	}
}

func (s *OMS) publish(ctx context.Context, topic, key string, v any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, topic, key, v); err != nil {
		s.logger.Error("publish event", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
	}
}

func (s *OMS) handleOpenOrder(ctx context.Context, m openOrderMsg) {
	entry, result := s.ledger.Upsert(m.orderID, m.order, m.contract, m.state, s.now())
	if result == UpsertIgnored {
		metrics.BenignRaces.WithLabelValues("terminal_replay").Inc()
		s.logger.Debug("open order for terminal order ignored", zap.Int64("order_id", m.orderID))
		return
	}
	if m.order.PermID != 0 {
		s.correlator.OnPermanentID(m.orderID, m.order.PermID)
	}
	metrics.OpenOrders.Set(float64(s.ledger.Len()))

	s.logger.Info("open order",
		zap.Int64("order_id", entry.OrderID),
		zap.String("symbol", entry.Symbol()),
		zap.String("action", string(entry.Action())),
		zap.String("type", entry.Order.OrderType),
		zap.String("quantity", entry.Order.TotalQuantity.String()),
		zap.String("status", string(entry.Status())),
	)

	if result == UpsertTerminal {
		s.onTerminal(ctx, entry)
	}
}

func (s *OMS) handleOrderStatus(ctx context.Context, u model.OrderStatusUpdate) {
	entry, result := s.ledger.ApplyStatus(u, s.now())
	if u.PermID != 0 {
		s.correlator.OnPermanentID(u.OrderID, u.PermID)
	}

	log := s.logger.With(
		zap.Int64("order_id", u.OrderID),
		zap.String("status", string(u.Status)),
		zap.String("filled", u.Filled.String()),
		zap.String("remaining", u.Remaining.String()),
	)

	// a terminal order still reports its status, carrying the last ledger state
	ev := model.OrderStatusEvent{OrderStatus: u}
	switch result {
	case UpsertIgnored:
		e := entry
		ev.Order = &e
		log.Debug("status for terminal order", zap.String("symbol", entry.Symbol()))
	case UpsertUnknown:
		log.Info("order status for order not in ledger")
	default:
		e := entry
		ev.Order = &e
		log.Info("order status", zap.String("symbol", entry.Symbol()))
	}
	s.publish(ctx, eventbus.TopicOrderStatus, entry.Symbol(), ev)
	metrics.OpenOrders.Set(float64(s.ledger.Len()))

	if result == UpsertTerminal {
		s.onTerminal(ctx, entry)
	}
}

func (s *OMS) handleOpenOrderEnd(ctx context.Context) {
	s.refreshPending = false
	orders := s.ledger.All()
	for _, w := range s.waiters {
		w <- orders
	}
	s.waiters = nil

	s.logger.Debug("open orders received", zap.Int("count", len(orders)))
	s.publish(ctx, eventbus.TopicOpenOrders, "", model.OpenOrdersEvent{Orders: orders})
}
