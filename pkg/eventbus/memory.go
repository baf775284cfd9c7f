package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("event bus closed")

// MemoryBus delivers in-process. Publish never blocks on a slow subscriber:
// each subscription owns an unbounded queue drained by its own goroutine.
type MemoryBus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[string][]*subscription
	closed bool
}

func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	if logger == nil {
		logger = zap.L()
	}
	return &MemoryBus{logger: logger, subs: map[string][]*subscription{}}
}

func (b *MemoryBus) Publish(ctx context.Context, topic, key string, v any) error {
	data, headers, err := encode(ctx, v)
	if err != nil {
		return err
	}
	msg := Message{Topic: topic, Key: key, Value: data, Headers: headers, Time: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, s := range b.subs[topic] {
		s.push(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	s := &subscription{handler: h, logger: b.logger.With(zap.String("topic", topic))}
	s.cond = sync.NewCond(&s.mu)
	b.subs[topic] = append(b.subs[topic], s)

	go s.run(ctx)
	go func() {
		<-ctx.Done()
		b.remove(topic, s)
	}()
	return nil
}

func (b *MemoryBus) remove(topic string, s *subscription) {
	b.mu.Lock()
	subs := b.subs[topic]
	for i, cur := range subs {
		if cur == s {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	s.close()
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			s.close()
		}
	}
	b.subs = map[string][]*subscription{}
	return nil
}

type subscription struct {
	handler Handler
	logger  *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  deque.Deque[Message]
	closed bool
}

func (s *subscription) push(msg Message) {
	s.mu.Lock()
	if !s.closed {
		s.queue.PushBack(msg)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *subscription) run(ctx context.Context) {
	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		msg := s.queue.PopFront()
		s.mu.Unlock()

		if err := s.handler(msg.Context(ctx), msg); err != nil {
			s.logger.Warn("event handler failed", zap.String("key", msg.Key), zap.Error(err))
		}
	}
}
