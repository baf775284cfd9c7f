package oms

import (
	"context"
	"time"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"go.uber.org/zap"
)

// Status is a point-in-time view of the coordinator.
type Status struct {
	Active         bool   `json:"active"`
	Phase          string `json:"phase"`
	QueueDepth     int    `json:"queueDepth"`
	Settling       string `json:"settling,omitempty"`
	OpenOrders     int    `json:"openOrders"`
	Correlations   int    `json:"correlations"`
	LastIdentifier int64  `json:"lastIdentifier"`
	RefreshPending bool   `json:"refreshPending"`
}

// PendingRequest is a queued or settling request.
type PendingRequest struct {
	Ref        string    `json:"ref"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Type       string    `json:"type"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	TickerID   int64     `json:"tickerId,omitempty"`
}

// query runs fn on the loop and waits for it.
func (s *OMS) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.send(queryMsg{fn: fn, done: done}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return ErrStopped
	}
}

func (s *OMS) OpenOrders(ctx context.Context) ([]model.OpenOrderEntry, error) {
	var out []model.OpenOrderEntry
	err := s.query(ctx, func() { out = s.ledger.All() })
	return out, err
}

func (s *OMS) Correlations(ctx context.Context) ([]model.TickerCorrelation, error) {
	var out []model.TickerCorrelation
	err := s.query(ctx, func() { out = s.correlator.All() })
	return out, err
}

func (s *OMS) CorrelationBySymbol(ctx context.Context, symbol string) (model.TickerCorrelation, bool, error) {
	var (
		out model.TickerCorrelation
		ok  bool
	)
	err := s.query(ctx, func() { out, ok = s.correlator.LookupBySymbol(symbol) })
	return out, ok, err
}

// Pending lists requests in submission order, the settling one first.
func (s *OMS) Pending(ctx context.Context) ([]PendingRequest, error) {
	var out []PendingRequest
	err := s.query(ctx, func() {
		out = make([]PendingRequest, 0, s.queue.Len()+1)
		if s.settling != nil {
			out = append(out, pendingOf(s.settling))
		}
		for i := 0; i < s.queue.Len(); i++ {
			out = append(out, pendingOf(s.queue.At(i)))
		}
	})
	return out, err
}

func pendingOf(sub *submission) PendingRequest {
	return PendingRequest{
		Ref:        sub.req.Ref,
		Symbol:     sub.req.Symbol,
		Action:     string(sub.req.Action),
		Type:       sub.req.OrderType,
		EnqueuedAt: sub.enqueuedAt,
		TickerID:   sub.tickerID,
	}
}

func (s *OMS) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.query(ctx, func() {
		st = Status{
			Active:         s.IsActive(),
			Phase:          s.phase.String(),
			QueueDepth:     s.queue.Len(),
			OpenOrders:     s.ledger.Len(),
			Correlations:   s.correlator.Len(),
			LastIdentifier: s.lastIdentifier,
			RefreshPending: s.refreshPending,
		}
		if s.settling != nil {
			st.Settling = s.settling.req.Ref
		}
	})
	return st, err
}

func (s *OMS) startCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.send(cleanupMsg{})
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// cleanup forgets terminal orders older than the retention window.
func (s *OMS) cleanup() {
	cutoff := s.now().Add(-s.cfg.Retention)
	correlations := s.correlator.PruneTerminal(cutoff)
	tombstones := s.ledger.PruneTombstones(cutoff)
	if correlations+tombstones > 0 {
		s.logger.Debug("clean up",
			zap.Int("correlations", correlations),
			zap.Int("tombstones", tombstones),
		)
	}
}
