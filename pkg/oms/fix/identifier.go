package fixgateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdentifierSource hands out ClOrdIDs that are unique for the session.
type IdentifierSource interface {
	Next(ctx context.Context) (int64, error)
}

// LocalIdentifierSource counts up from a seed. With seed 0 it starts from
// the current time so restarts do not reuse ids.
type LocalIdentifierSource struct {
	next atomic.Int64
}

func NewLocalIdentifierSource(seed int64) *LocalIdentifierSource {
	if seed <= 0 {
		seed = time.Now().UnixMilli()
	}
	s := &LocalIdentifierSource{}
	s.next.Store(seed - 1)
	return s
}

func (s *LocalIdentifierSource) Next(context.Context) (int64, error) {
	return s.next.Add(1), nil
}

// RedisIdentifierSource shares one counter between coordinator instances.
type RedisIdentifierSource struct {
	client redis.UniversalClient
	key    string
	seed   int64
}

func NewRedisIdentifierSource(client redis.UniversalClient, key string) *RedisIdentifierSource {
	if key == "" {
		key = "oms:next_order_id"
	}
	return &RedisIdentifierSource{client: client, key: key, seed: time.Now().UnixMilli()}
}

func (s *RedisIdentifierSource) Next(ctx context.Context) (int64, error) {
	// first use starts the counter from the seed
	if err := s.client.SetNX(ctx, s.key, s.seed, 0).Err(); err != nil {
		return 0, err
	}
	return s.client.Incr(ctx, s.key).Result()
}
