package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	kafkawrapper "github.com/joripage/stock-oms/pkg/kafka_wrapper"
	"go.uber.org/zap"
)

type KafkaConfig struct {
	Brokers     []string      `yaml:"brokers"`
	GroupID     string        `yaml:"group_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	MaxRetries  int           `yaml:"max_retries"`
	DLQTopic    string        `yaml:"dlq_topic"`
	Async       bool          `yaml:"async"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

// KafkaBus maps each topic to a Kafka topic. Subscriptions join GroupID so
// several processes share the work.
type KafkaBus struct {
	cfg      KafkaConfig
	logger   *zap.Logger
	producer *kafkawrapper.Producer

	mu     sync.Mutex
	groups []*kafkawrapper.ConsumerGroup
	wg     sync.WaitGroup
}

func NewKafkaBus(cfg KafkaConfig, logger *zap.Logger) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if logger == nil {
		logger = zap.L()
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "stock-oms"
	}
	return &KafkaBus{
		cfg:      cfg,
		logger:   logger,
		producer: kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{Brokers: cfg.Brokers, Async: cfg.Async}),
	}, nil
}

func (b *KafkaBus) topic(name string) string { return b.cfg.TopicPrefix + name }

func (b *KafkaBus) Publish(ctx context.Context, topic, key string, v any) error {
	data, headers, err := encode(ctx, v)
	if err != nil {
		return err
	}
	return b.producer.Publish(ctx, b.topic(topic), kafkawrapper.HashKey(key), data, withKey(headers, key))
}

// Kafka keys are fixed-width hashes of the event key, so one symbol stays on
// one partition. The readable key travels in a header.
func withKey(headers map[string]string, key string) map[string]string {
	if headers == nil {
		headers = map[string]string{}
	}
	headers[headerKey] = key
	return headers
}

func fromKafka(topic string, m kafkawrapper.Message) Message {
	key, ok := m.Headers[headerKey]
	if !ok {
		key = string(m.Key)
	}
	return Message{Topic: topic, Key: key, Value: m.Value, Headers: m.Headers, Time: m.Time}
}

func (b *KafkaBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	group, err := kafkawrapper.NewConsumerGroup(kafkawrapper.ConsumerConfig{
		Brokers:    b.cfg.Brokers,
		GroupID:    b.cfg.GroupID,
		Topic:      b.topic(topic),
		MaxRetries: b.cfg.MaxRetries,
		BackoffMax: b.cfg.BackoffMax,
		DLQTopic:   b.cfg.DLQTopic,
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.groups = append(b.groups, group)
	b.mu.Unlock()

	logger := b.logger.With(zap.String("topic", topic), zap.String("group", b.cfg.GroupID))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := group.Run(ctx, func(ctx context.Context, m kafkawrapper.Message) error {
			msg := fromKafka(topic, m)
			return h(msg.Context(ctx), msg)
		}, func(err error) {
			logger.Warn("kafka consumer", zap.Error(err))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("kafka consumer stopped", zap.Error(err))
		}
	}()
	return nil
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	groups := b.groups
	b.groups = nil
	b.mu.Unlock()

	var errs []error
	for _, g := range groups {
		errs = append(errs, g.Close())
	}
	b.wg.Wait()
	errs = append(errs, b.producer.Close())
	return errors.Join(errs...)
}
