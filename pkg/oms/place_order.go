package oms

import (
	"context"

	"github.com/joripage/stock-oms/pkg/eventbus"
	"github.com/joripage/stock-oms/pkg/logging"
	"github.com/joripage/stock-oms/pkg/oms/model"
	"go.uber.org/zap"
)

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h eventbus.Handler) error
}

// ConsumePlaceOrders enqueues every PLACE_ORDER command published on the
// bus. Malformed and rejected commands are logged and dropped.
func (s *OMS) ConsumePlaceOrders(ctx context.Context, sub Subscriber) error {
	return sub.Subscribe(ctx, eventbus.TopicPlaceOrder, func(ctx context.Context, msg eventbus.Message) error {
		ctx = logging.NewRequestID(ctx)
		log := logging.FromContext(ctx, s.logger)

		var cmd model.PlaceOrderCommand
		if err := msg.Decode(&cmd); err != nil {
			log.Error("decode place order command", zap.Error(err))
			return nil
		}

		ticket, err := s.Enqueue(ctx, cmd.Request)
		if err != nil {
			// already logged by Enqueue
			return nil
		}

		go func() {
			p, err := ticket.Result()
			if err != nil {
				log.Warn("place order command not submitted", zap.String("ref", ticket.Ref), zap.Error(err))
				return
			}
			log.Info("place order command submitted", zap.String("ref", p.Ref), zap.Int64("ticker_id", p.TickerID))
		}()
		return nil
	})
}
