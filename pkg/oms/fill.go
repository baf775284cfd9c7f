package oms

import (
	"context"
	"strconv"

	"github.com/joripage/stock-oms/pkg/eventbus"
	"github.com/joripage/stock-oms/pkg/metrics"
	"github.com/joripage/stock-oms/pkg/oms/model"
	"go.uber.org/zap"
)

// onTerminal runs once per order, when the ledger first sees it terminal.
// Only orders placed through this coordinator emit ORDER_FILLED, and only
// when Filled.
func (s *OMS) onTerminal(ctx context.Context, entry model.OpenOrderEntry) {
	log := s.logger.With(
		zap.Int64("order_id", entry.OrderID),
		zap.String("symbol", entry.Symbol()),
		zap.String("status", string(entry.Status())),
	)

	corr, ok := s.correlator.LookupByTickerID(entry.OrderID)
	if !ok {
		metrics.BenignRaces.WithLabelValues("terminal_uncorrelated").Inc()
		log.Debug("terminal order was not placed here")
		return
	}
	s.correlator.MarkTerminal(entry.OrderID, s.now())

	if entry.Status() != model.OrderStatusFilled {
		log.Info("order ended without fill")
		return
	}

	sale := model.NewSale(corr.Request)
	metrics.Fills.WithLabelValues(strconv.FormatBool(corr.Request.ExitTrade)).Inc()
	switch {
	case sale != nil:
		metrics.RealizedProfit.Add(sale.Profit.InexactFloat64())
		log.Info("order filled, sale created",
			zap.String("entry_price", sale.EntryPrice.String()),
			zap.String("exit_price", sale.ExitPrice.String()),
			zap.String("profit", sale.Profit.String()),
		)
	case corr.Request.ExitTrade:
		log.Warn("exit order filled without exit parameters, no sale created")
	default:
		log.Info("order filled")
	}

	s.publish(ctx, eventbus.TopicOrderFilled, entry.Symbol(), model.OrderFilledEvent{Sale: sale, Order: entry})
}
