package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/vana-arb-go/internal/config"
)

// RedisClient owns the shared go-redis client used by the caches and /health.
type RedisClient struct {
	Client *redis.Client
	logger *logrus.Logger
}

// NewRedisConnection connects and pings Redis within five seconds.
func NewRedisConnection(cfg config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	client := NewRedisClient(rdb, logger)
	client.logger.WithField("addr", cfg.Addr()).Info("Successfully connected to Redis")
	return client, nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(rdb *redis.Client, logger *logrus.Logger) *RedisClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisClient{Client: rdb, logger: logger}
}

func (r *RedisClient) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	if err := r.Client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// HealthCheck pings Redis.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// PoolStats reports connection pool usage for /health.
func (r *RedisClient) PoolStats() map[string]uint32 {
	if r == nil || r.Client == nil {
		return nil
	}
	stats := r.Client.PoolStats()
	return map[string]uint32{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
	}
}
