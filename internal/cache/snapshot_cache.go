package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const latestSnapshotKey = "latest"

// SnapshotCache keeps the last successful dashboard snapshot.
type SnapshotCache interface {
	Get(ctx context.Context) (*models.DashboardData, bool)
	Set(ctx context.Context, data *models.DashboardData) error
	GetStats() SnapshotCacheStats
}

// SnapshotCacheStats tracks cache performance metrics
type SnapshotCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// HitRate returns hits as a percentage of lookups.
func (s SnapshotCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

type statsCounter struct {
	mu    sync.RWMutex
	stats SnapshotCacheStats
}

func (c *statsCounter) hit()  { c.mu.Lock(); c.stats.Hits++; c.mu.Unlock() }
func (c *statsCounter) miss() { c.mu.Lock(); c.stats.Misses++; c.mu.Unlock() }
func (c *statsCounter) set()  { c.mu.Lock(); c.stats.Sets++; c.mu.Unlock() }

func (c *statsCounter) snapshot() SnapshotCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// snapshotEntry is the stored form of a snapshot
type snapshotEntry struct {
	Data     *models.DashboardData `json:"data"`
	CachedAt time.Time             `json:"cached_at"`
}

// RedisSnapshotCache stores the latest snapshot as JSON in Redis with a TTL.
type RedisSnapshotCache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *logrus.Logger
	stats  statsCounter
}

// NewRedisSnapshotCache creates a new Redis-based snapshot cache
func NewRedisSnapshotCache(client redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *RedisSnapshotCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisSnapshotCache{
		redis:  client,
		ttl:    ttl,
		prefix: "vana:snapshot:",
		logger: logger,
	}
}

// Get returns the cached snapshot. Redis and decoding errors count as misses.
func (c *RedisSnapshotCache) Get(ctx context.Context) (*models.DashboardData, bool) {
	key := c.prefix + latestSnapshotKey

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("Redis error getting dashboard snapshot")
		}
		c.stats.miss()
		return nil, false
	}

	var entry snapshotEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Data == nil {
		c.logger.WithError(err).Warn("Error deserializing cached dashboard snapshot")
		c.stats.miss()
		return nil, false
	}

	c.stats.hit()
	return entry.Data, true
}

// Set stores data under the latest key.
func (c *RedisSnapshotCache) Set(ctx context.Context, data *models.DashboardData) error {
	if data == nil {
		return errors.New("snapshot is nil")
	}

	payload, err := json.Marshal(snapshotEntry{Data: data, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	if err := c.redis.Set(ctx, c.prefix+latestSnapshotKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	c.stats.set()
	c.logger.WithFields(logrus.Fields{
		"snapshot_id": data.ID,
		"quotes":      len(data.Quotes),
		"ttl":         c.ttl.String(),
	}).Debug("Cached dashboard snapshot")
	return nil
}

// GetStats returns current cache statistics
func (c *RedisSnapshotCache) GetStats() SnapshotCacheStats {
	return c.stats.snapshot()
}

// LogStats logs current cache performance statistics
func (c *RedisSnapshotCache) LogStats() {
	stats := c.GetStats()
	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"hit_rate": fmt.Sprintf("%.2f%%", stats.HitRate()),
	}).Info("Snapshot cache stats")
}

// Clear removes every snapshot key under the cache prefix.
func (c *RedisSnapshotCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}
	return nil
}

// MemorySnapshotCache is used when Redis is not configured.
type MemorySnapshotCache struct {
	mu       sync.RWMutex
	data     *models.DashboardData
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
	stats    statsCounter
}

// NewMemorySnapshotCache creates an in-process snapshot cache. A zero ttl never expires.
func NewMemorySnapshotCache(ttl time.Duration) *MemorySnapshotCache {
	return &MemorySnapshotCache{ttl: ttl, now: time.Now}
}

func (c *MemorySnapshotCache) Get(ctx context.Context) (*models.DashboardData, bool) {
	c.mu.RLock()
	data, cachedAt := c.data, c.cachedAt
	c.mu.RUnlock()

	if data == nil || (c.ttl > 0 && c.now().Sub(cachedAt) > c.ttl) {
		c.stats.miss()
		return nil, false
	}
	c.stats.hit()
	return data, true
}

func (c *MemorySnapshotCache) Set(ctx context.Context, data *models.DashboardData) error {
	if data == nil {
		return errors.New("snapshot is nil")
	}
	c.mu.Lock()
	c.data = data
	c.cachedAt = c.now()
	c.mu.Unlock()
	c.stats.set()
	return nil
}

func (c *MemorySnapshotCache) GetStats() SnapshotCacheStats {
	return c.stats.snapshot()
}
