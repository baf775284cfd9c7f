// Package eventbus carries coordinator events between processes. Payloads
// are JSON; the message key is the symbol or order id so brokers that
// partition by key keep per-order ordering.
package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joripage/stock-oms/pkg/logging"
	"go.uber.org/zap"
)

const (
	TopicOpenOrders  = "OPEN_ORDERS"
	TopicOrderStatus = "ORDER_STATUS"
	TopicOrderFilled = "ORDER_FILLED"
	TopicPlaceOrder  = "PLACE_ORDER"

	headerRequestID = "request_id"
	headerKey       = "event_key"
)

type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
	Time    time.Time
}

// Decode unmarshals the payload. Numbers decode as json.Number so order
// parameters keep their precision.
func (m Message) Decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(m.Value))
	dec.UseNumber()
	return dec.Decode(v)
}

// Context returns ctx carrying the request id the publisher attached.
func (m Message) Context(ctx context.Context) context.Context {
	if id := m.Headers[headerRequestID]; id != "" {
		return logging.WithRequestID(ctx, id)
	}
	return ctx
}

// Handler processes one message. Handlers of one subscription are called
// sequentially in publish order.
type Handler func(ctx context.Context, msg Message) error

type Bus interface {
	Publish(ctx context.Context, topic, key string, v any) error
	// Subscribe delivers messages of topic to h until ctx is done.
	Subscribe(ctx context.Context, topic string, h Handler) error
	Close() error
}

type Config struct {
	Driver string      `yaml:"driver"` // memory|kafka|nats
	Kafka  KafkaConfig `yaml:"kafka"`
	NATS   NATSConfig  `yaml:"nats"`
}

func New(cfg Config, logger *zap.Logger) (Bus, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryBus(logger), nil
	case "kafka":
		return NewKafkaBus(cfg.Kafka, logger)
	case "nats":
		return NewNATSBus(cfg.NATS, logger)
	}
	return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
}

func encode(ctx context.Context, v any) ([]byte, map[string]string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode event: %w", err)
	}
	headers := map[string]string{}
	if id := logging.RequestID(ctx); id != "" {
		headers[headerRequestID] = id
	}
	return data, headers, nil
}
