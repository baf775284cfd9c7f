// Package kafkawrapper publishes messages to Kafka and consumes a topic
// through a consumer group, one message at a time so per-partition order is
// kept.
package kafkawrapper

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
	Headers   map[string]string
}

type ProducerConfig struct {
	Brokers      []string
	Balancer     kafka.Balancer
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
	// Async returns from Publish before the broker acknowledges.
	Async bool
}

type Producer struct {
	w *kafka.Writer
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = kafka.RequireOne
	}
	wr := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               cfg.Balancer,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           cfg.RequiredAcks,
		Async:                  cfg.Async,
	}
	return &Producer{w: wr}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	if p == nil || p.w == nil {
		return errors.New("producer not initialized")
	}
	var kh []kafka.Header
	for k, v := range headers {
		kh = append(kh, kafka.Header{Key: k, Value: []byte(v)})
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: kh,
		Time:    time.Now(),
	})
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topic      string
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
	// DLQTopic receives messages that still fail after MaxRetries.
	DLQTopic string
}

type ConsumerGroup struct {
	r          *kafka.Reader
	cfg        ConsumerConfig
	prodForDLQ *Producer
}

func NewConsumerGroup(cfg ConsumerConfig) (*ConsumerGroup, error) {
	if cfg.GroupID == "" || cfg.Topic == "" {
		return nil, errors.New("consumer group and topic are required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffMin == 0 {
		cfg.BackoffMin = 100 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 10 * time.Second
	}

	rd := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MaxWait:     500 * time.Millisecond,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})

	var prod *Producer
	if cfg.DLQTopic != "" {
		prod = NewProducer(ProducerConfig{Brokers: cfg.Brokers})
	}

	return &ConsumerGroup{r: rd, cfg: cfg, prodForDLQ: prod}, nil
}

func (cg *ConsumerGroup) Close() error {
	if cg == nil {
		return nil
	}
	if cg.prodForDLQ != nil {
		_ = cg.prodForDLQ.Close()
	}
	if cg.r != nil {
		return cg.r.Close()
	}
	return nil
}

// Run fetches until ctx is done. A message is committed once handler
// succeeds, or once it has been retried MaxRetries times (and sent to the
// DLQ when one is configured). onError, when set, sees fetch and handler
// errors.
func (cg *ConsumerGroup) Run(ctx context.Context, handler func(context.Context, Message) error, onError func(error)) error {
	if cg == nil || cg.r == nil {
		return errors.New("consumer not initialized")
	}
	if onError == nil {
		onError = func(error) {}
	}

	for {
		m, err := cg.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			onError(fmt.Errorf("fetch: %w", err))
			if !sleep(ctx, 200*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}

		msg := wrapMessage(m)
		for attempt := 1; ; attempt++ {
			err := handler(ctx, msg)
			if err == nil {
				break
			}
			onError(fmt.Errorf("handle %s/%d@%d: %w", m.Topic, m.Partition, m.Offset, err))
			if attempt > cg.cfg.MaxRetries {
				if cg.prodForDLQ != nil {
					if err := cg.prodForDLQ.Publish(ctx, cg.cfg.DLQTopic, m.Key, m.Value, msg.Headers); err != nil {
						onError(fmt.Errorf("dlq: %w", err))
					}
				}
				break
			}
			if !sleep(ctx, backoffDuration(cg.cfg.BackoffMin, cg.cfg.BackoffMax, attempt)) {
				return ctx.Err()
			}
		}

		if err := cg.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			onError(fmt.Errorf("commit: %w", err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func wrapMessage(m kafka.Message) Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
		Headers:   headers,
	}
}

// backoffDuration is exponential with full jitter, capped at max.
func backoffDuration(min, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	pow := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(min) * pow)
	if d > max || d <= 0 {
		d = max
	}
	if d > 0 {
		d = time.Duration(rand.Int63n(int64(d)))
	}
	return d
}

// HashKey maps s to a stable 8-byte key.
func HashKey(s string) []byte {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum64()
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(sum >> (56 - 8*i))
	}
	return b
}
