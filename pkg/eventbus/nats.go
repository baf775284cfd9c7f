package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	// Stream, when set, publishes through JetStream and subscribes with
	// durable consumers named Durable_<topic>.
	Stream  string `yaml:"stream"`
	Durable string `yaml:"durable"`
}

type NATSBus struct {
	cfg    NATSConfig
	logger *zap.Logger
	nc     *nats.Conn
	js     nats.JetStreamContext

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewNATSBus(cfg NATSConfig, logger *zap.Logger) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "OMS"
	}
	if logger == nil {
		logger = zap.L()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("stock-oms"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}

	b := &NATSBus{cfg: cfg, logger: logger, nc: nc}
	if cfg.Stream != "" {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, err
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.SubjectPrefix + ".*"},
		})
		if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			nc.Close()
			return nil, fmt.Errorf("nats add stream %s: %w", cfg.Stream, err)
		}
		b.js = js
	}
	return b, nil
}

func (b *NATSBus) subject(topic string) string { return b.cfg.SubjectPrefix + "." + topic }

func (b *NATSBus) Publish(ctx context.Context, topic, key string, v any) error {
	data, headers, err := encode(ctx, v)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(b.subject(topic))
	msg.Data = data
	msg.Header.Set("key", key)
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if b.js != nil {
		_, err = b.js.PublishMsg(msg, nats.Context(ctx))
		return err
	}
	return b.nc.PublishMsg(msg)
}

// Subscribe relies on the client invoking callbacks of one subscription
// sequentially.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	logger := b.logger.With(zap.String("topic", topic))
	cb := func(m *nats.Msg) {
		msg := Message{Topic: topic, Key: m.Header.Get("key"), Value: m.Data, Headers: map[string]string{}, Time: time.Now()}
		for k := range m.Header {
			msg.Headers[k] = m.Header.Get(k)
		}
		err := h(msg.Context(ctx), msg)
		if err != nil {
			logger.Warn("event handler failed", zap.String("key", msg.Key), zap.Error(err))
		}
		if b.js != nil {
			if err != nil {
				_ = m.Nak()
				return
			}
			_ = m.Ack()
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if b.js != nil {
		durable := b.cfg.Durable
		if durable == "" {
			durable = "stock_oms"
		}
		sub, err = b.js.Subscribe(b.subject(topic), cb, nats.Durable(durable+"_"+topic), nats.ManualAck())
	} else {
		sub, err = b.nc.Subscribe(b.subject(topic), cb)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
