// Package cache keeps short-lived state, such as processed webhook ids, in Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"example/healing-api/app/config"

	"github.com/redis/go-redis/v9"
)

const (
	redisPoolSize     = 10
	redisMinIdle      = 2
	redisDialTimeout  = 5 * time.Second
	redisQueryTimeout = 3 * time.Second
)

type RedisClient struct {
	Client *redis.Client
}

// NewRedis configures a client for cfg. No connection is made until the first command.
func NewRedis(cfg config.RedisConfig) *RedisClient {
	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     redisPoolSize,
		MinIdleConns: redisMinIdle,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisQueryTimeout,
		WriteTimeout: redisQueryTimeout,
	})}
}

// Deduper returns an EventDeduper sharing this client's pool.
func (c *RedisClient) Deduper(ttl time.Duration) *EventDeduper {
	return NewEventDeduper(c.Client, ttl)
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis at %s: %w", c.Client.Options().Addr, err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
