package redis_wrapper

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	ConnectionURL       string `yaml:"connection_url"`
	PoolSize            int    `yaml:"pool_size"`
	DialTimeoutSeconds  int    `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `yaml:"idle_timeout_seconds"`
}

// Options turns the config into client options. Zero values keep the
// go-redis defaults.
func (c *RedisConfig) Options() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.ConnectionURL)
	if err != nil {
		return nil, err
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	if c.DialTimeoutSeconds > 0 {
		opts.DialTimeout = time.Duration(c.DialTimeoutSeconds) * time.Second
	}
	if c.ReadTimeoutSeconds > 0 {
		opts.ReadTimeout = time.Duration(c.ReadTimeoutSeconds) * time.Second
	}
	if c.WriteTimeoutSeconds > 0 {
		opts.WriteTimeout = time.Duration(c.WriteTimeoutSeconds) * time.Second
	}
	if c.IdleTimeoutSeconds > 0 {
		opts.ConnMaxIdleTime = time.Duration(c.IdleTimeoutSeconds) * time.Second
	}
	return opts, nil
}

// InitRedis create a redis from config
func InitRedis(ctx context.Context, redisCfg *RedisConfig) (*redis.Client, error) {
	opts, err := redisCfg.Options()
	if err != nil {
		zap.S().Debugf("parse redis url fail: %+v", err)
		return nil, err
	}

	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	zap.S().Debug("connect to redis successful")
	return redisClient, nil
}
