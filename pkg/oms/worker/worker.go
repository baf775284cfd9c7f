// Package worker journals the sales the coordinator emits.
package worker

import (
	"context"
	"fmt"

	"github.com/joripage/stock-oms/pkg/eventbus"
	"github.com/joripage/stock-oms/pkg/logging"
	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/joripage/stock-oms/pkg/oms/repo"
	"go.uber.org/zap"
)

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h eventbus.Handler) error
}

type Worker struct {
	sale   repo.ISale
	logger *zap.Logger
}

func NewWorker(repo repo.IRepo, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.L()
	}
	return &Worker{
		sale:   repo.Sale(),
		logger: logger.Named("worker"),
	}
}

// StartConsumer subscribes to ORDER_FILLED until ctx is done.
func (w *Worker) StartConsumer(ctx context.Context, sub Subscriber) error {
	return sub.Subscribe(ctx, eventbus.TopicOrderFilled, w.handleEvent)
}

// handleEvent stores the sale of an exit fill. Undecodable payloads are
// dropped; store failures are returned so the bus retries.
func (w *Worker) handleEvent(ctx context.Context, msg eventbus.Message) error {
	log := logging.FromContext(ctx, w.logger)

	var ev model.OrderFilledEvent
	if err := msg.Decode(&ev); err != nil {
		log.Error("unmarshal order filled event", zap.Error(err), zap.String("key", msg.Key))
		return nil
	}

	record := model.NewSaleRecord(ev)
	if record == nil {
		log.Debug("fill without sale", zap.Int64("order_id", ev.Order.OrderID))
		return nil
	}

	stored, err := w.sale.Create(ctx, record)
	if err != nil {
		return fmt.Errorf("store sale for order %d: %w", ev.Order.OrderID, err)
	}
	if !stored {
		log.Info("sale already journaled", zap.Int64("order_id", ev.Order.OrderID))
		return nil
	}
	log.Info("sale journaled",
		zap.Int64("order_id", record.OrderID),
		zap.String("symbol", record.Symbol),
		zap.String("profit", record.Profit.String()),
	)
	return nil
}
