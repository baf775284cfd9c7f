package oms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joripage/stock-oms/pkg/metrics"
	"github.com/joripage/stock-oms/pkg/oms/model"
	"go.uber.org/zap"
)

// The gateway hands out one identifier per request and does not say which
// request it answers, so at most one identifier request is outstanding and
// each grant belongs to the head of the queue.
type phase int

const (
	phaseIdle phase = iota
	phaseAwaitingIdentifier
	// phaseSettling: identifier bound, waiting SettleDelay before submitting.
	phaseSettling
)

func (p phase) String() string {
	switch p {
	case phaseAwaitingIdentifier:
		return "awaiting_identifier"
	case phaseSettling:
		return "settling"
	}
	return "idle"
}

type submission struct {
	req        model.OrderRequest
	ticket     *Ticket
	enqueuedAt time.Time

	tickerID int64
	order    model.Order
}

// pump asks for the next identifier when nothing is in flight.
func (s *OMS) pump(ctx context.Context) {
	defer func() { metrics.QueueDepth.Set(float64(s.queue.Len())) }()

	for s.phase == phaseIdle && s.queue.Len() > 0 {
		s.identSeq++
		seq := s.identSeq
		s.phase = phaseAwaitingIdentifier

		if err := s.gateway.RequestNextIdentifier(ctx); err != nil {
			s.phase = phaseIdle
			s.fail(s.queue.PopFront(), fmt.Errorf("request identifier: %w", err), "gateway")
			continue
		}
		s.after(s.cfg.IdentifierTimeout, identifierTimeoutMsg{seq: seq})
	}
}

func (s *OMS) handleIdentifier(ctx context.Context, id int64) {
	s.lastIdentifier = id
	if s.phase != phaseAwaitingIdentifier {
		metrics.BenignRaces.WithLabelValues("identifier_unsolicited").Inc()
		s.logger.Warn("identifier granted while none was requested", zap.Int64("ticker_id", id), zap.Stringer("phase", s.phase))
		return
	}
	s.phase = phaseIdle

	if s.queue.Len() == 0 {
		metrics.BenignRaces.WithLabelValues("identifier_empty_queue").Inc()
		s.logger.Warn("identifier granted but no order request is queued", zap.Int64("ticker_id", id))
		return
	}
	sub := s.queue.PopFront()
	log := s.logger.With(zap.String("ref", sub.req.Ref), zap.String("symbol", sub.req.Symbol), zap.Int64("ticker_id", id))

	order, err := model.BuildOrder(sub.req)
	if err != nil {
		s.fail(sub, err, failureReason(err))
		s.pump(ctx)
		return
	}

	s.correlator.Bind(id, sub.req.Symbol, sub.req, s.now())
	sub.tickerID = id
	sub.order = order
	s.settling = sub
	s.phase = phaseSettling
	log.Debug("identifier bound", zap.Duration("queued_for", s.now().Sub(sub.enqueuedAt)))

	if s.cfg.SettleDelay <= 0 {
		s.submit(ctx, sub)
		return
	}
	s.after(s.cfg.SettleDelay, submitDueMsg{sub: sub})
}

func (s *OMS) submit(ctx context.Context, sub *submission) {
	if s.settling != sub {
		// withdrawn while settling
		return
	}
	s.settling = nil
	s.phase = phaseIdle

	log := s.logger.With(zap.String("ref", sub.req.Ref), zap.String("symbol", sub.req.Symbol), zap.Int64("ticker_id", sub.tickerID))
	contract := model.StockContract(sub.req.Symbol)
	if err := s.gateway.SubmitOrder(ctx, sub.tickerID, contract, sub.order); err != nil {
		s.correlator.Unbind(sub.tickerID)
		s.fail(sub, fmt.Errorf("submit order %d: %w", sub.tickerID, err), "gateway")
		s.pump(ctx)
		return
	}
	metrics.OrdersSubmitted.Inc()
	log.Info("order placed",
		zap.String("action", string(sub.order.Action)),
		zap.String("type", sub.order.OrderType),
		zap.String("quantity", sub.order.TotalQuantity.String()),
		zap.String("limit_price", sub.order.LimitPrice.String()),
		zap.String("aux_price", sub.order.AuxPrice.String()),
	)

	if err := s.gateway.RequestAllOpenOrders(ctx); err != nil {
		log.Warn("request open orders after placing", zap.Error(err))
	}
	sub.ticket.resolve(model.Placement{Ref: sub.req.Ref, TickerID: sub.tickerID, Symbol: sub.req.Symbol}, nil)

	s.pump(ctx)
}

func (s *OMS) handleIdentifierTimeout(ctx context.Context, seq uint64) {
	if s.phase != phaseAwaitingIdentifier || seq != s.identSeq {
		return
	}
	s.phase = phaseIdle
	if s.queue.Len() > 0 {
		s.fail(s.queue.PopFront(), ErrIdentifierTimeout, "identifier_timeout")
	}
	s.pump(ctx)
}

func (s *OMS) handleCancel(ctx context.Context, ref string) error {
	if i := s.queue.Index(func(sub *submission) bool { return sub.req.Ref == ref }); i >= 0 {
		sub := s.queue.Remove(i)
		s.fail(sub, ErrCancelled, "cancelled")
		metrics.QueueDepth.Set(float64(s.queue.Len()))
		return nil
	}
	if s.settling != nil && s.settling.req.Ref == ref {
		sub := s.settling
		s.settling = nil
		s.phase = phaseIdle
		s.correlator.Unbind(sub.tickerID)
		s.fail(sub, ErrCancelled, "cancelled")
		s.pump(ctx)
		return nil
	}
	for _, corr := range s.correlator.All() {
		if corr.Request.Ref == ref {
			return fmt.Errorf("%w: %s as ticker %d", ErrNotCancellable, ref, corr.TickerID)
		}
	}
	return fmt.Errorf("%w: %s", ErrOrderNotFound, ref)
}

func (s *OMS) fail(sub *submission, err error, reason string) {
	metrics.SubmissionFailures.WithLabelValues(reason).Inc()
	log := s.logger.With(zap.String("ref", sub.req.Ref), zap.String("symbol", sub.req.Symbol), zap.String("reason", reason))
	if errors.Is(err, ErrCancelled) {
		log.Info("order request withdrawn")
	} else {
		log.Error("order request failed", zap.Error(err))
	}
	sub.ticket.resolve(model.Placement{}, err)
}

func failureReason(err error) string {
	if errors.Is(err, model.ErrMissingParameters) {
		return "missing_parameters"
	}
	return "invalid"
}

// drain fails whatever is still pending when the loop exits.
func (s *OMS) drain() {
	if s.settling != nil {
		s.fail(s.settling, ErrStopped, "stopped")
		s.settling = nil
	}
	for s.queue.Len() > 0 {
		s.fail(s.queue.PopFront(), ErrStopped, "stopped")
	}
	metrics.QueueDepth.Set(0)
}
