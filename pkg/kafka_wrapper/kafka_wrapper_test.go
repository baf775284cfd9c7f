package kafkawrapper

import (
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestBackoffDurationCapped(t *testing.T) {
	for attempt := 0; attempt < 40; attempt++ {
		d := backoffDuration(100*time.Millisecond, time.Second, attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, time.Second)
	}
}

func TestHashKeyStable(t *testing.T) {
	assert.Equal(t, HashKey("AAPL"), HashKey("AAPL"))
	assert.NotEqual(t, HashKey("AAPL"), HashKey("MSFT"))
	assert.Len(t, HashKey(""), 8)
}

func TestWrapMessageHeaders(t *testing.T) {
	m := wrapMessage(kafka.Message{
		Topic:   "ORDER_FILLED",
		Key:     []byte("AAPL"),
		Headers: []kafka.Header{{Key: "request_id", Value: []byte("r1")}},
	})
	assert.Equal(t, "r1", m.Headers["request_id"])
	assert.Equal(t, "ORDER_FILLED", m.Topic)
}

func TestNewConsumerGroupRequiresTopic(t *testing.T) {
	_, err := NewConsumerGroup(ConsumerConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"})
	assert.Error(t, err)
}
