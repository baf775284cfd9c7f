package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultRedisKey = "oms:positions"

// RedisTracker keeps positions in one hash, field = symbol, value = JSON, so
// several processes (a gateway adapter and the coordinator) share them.
type RedisTracker struct {
	client redis.UniversalClient
	key    string
}

func NewRedisTracker(client redis.UniversalClient, key string) *RedisTracker {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisTracker{client: client, key: key}
}

func (t *RedisTracker) Positions(ctx context.Context) ([]model.Position, error) {
	fields, err := t.client.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	m := make(map[string]model.Position, len(fields))
	for symbol, raw := range fields {
		p, err := decodePosition(raw)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", symbol, err)
		}
		m[symbol] = p
	}
	return sorted(m), nil
}

// Update replaces the whole snapshot atomically.
func (t *RedisTracker) Update(ctx context.Context, positions []model.Position) error {
	values := make([]any, 0, 2*len(positions))
	for _, p := range positions {
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		values = append(values, p.Symbol, raw)
	}
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, t.key)
		if len(values) > 0 {
			pipe.HSet(ctx, t.key, values...)
		}
		return nil
	})
	return err
}

// Apply books a fill with optimistic locking on the hash.
func (t *RedisTracker) Apply(ctx context.Context, symbol string, qty, price decimal.Decimal) (model.Position, error) {
	var out model.Position
	txf := func(tx *redis.Tx) error {
		var cur model.Position
		raw, err := tx.HGet(ctx, t.key, symbol).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if cur, err = decodePosition(raw); err != nil {
				return err
			}
		}

		out = applyFill(cur, symbol, qty, price)
		encoded, err := json.Marshal(out)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, t.key, symbol, encoded)
			return nil
		})
		return err
	}

	for i := 0; i < 5; i++ {
		err := t.client.Watch(ctx, txf, t.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return out, fmt.Errorf("apply fill %s: too much contention", symbol)
}

func decodePosition(raw string) (model.Position, error) {
	var p model.Position
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.Position{}, err
	}
	return p, nil
}

// FillSink adapts the tracker to callers that book fills without a context
// or error return. Failures are logged.
func (t *RedisTracker) FillSink(ctx context.Context, logger *zap.Logger) *RedisFillSink {
	if logger == nil {
		logger = zap.L()
	}
	return &RedisFillSink{ctx: ctx, tracker: t, logger: logger}
}

type RedisFillSink struct {
	ctx     context.Context
	tracker *RedisTracker
	logger  *zap.Logger
}

func (s *RedisFillSink) Apply(symbol string, qty, price decimal.Decimal) model.Position {
	p, err := s.tracker.Apply(s.ctx, symbol, qty, price)
	if err != nil {
		s.logger.Error("book fill in redis", zap.String("symbol", symbol), zap.Error(err))
	}
	return p
}
