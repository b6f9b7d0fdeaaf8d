package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CooldownEntry is a venue target that was rate limited.
type CooldownEntry struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CooldownStats holds statistics about the cooldown cache.
type CooldownStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Adds   int64 `json:"adds"`
}

// CooldownCache tracks rate-limited (exchange, symbol) targets until their cooldown passes.
type CooldownCache interface {
	// Active reports whether the target is cooling down, with the recorded reason.
	Active(ctx context.Context, exchange, symbol string) (bool, string)
	// Add starts a cooldown for the target. A non-positive ttl is ignored.
	Add(ctx context.Context, exchange, symbol, reason string, ttl time.Duration) error
	Remove(ctx context.Context, exchange, symbol string) error
	List(ctx context.Context) ([]CooldownEntry, error)
	GetStats() CooldownStats
}

func cooldownKey(exchange, symbol string) string {
	return strings.ToLower(exchange) + ":" + strings.ToUpper(symbol)
}

// RedisCooldownCache keeps cooldowns as Redis keys that expire with the cooldown.
type RedisCooldownCache struct {
	client redis.Cmdable
	prefix string
	logger *logrus.Logger

	mu    sync.Mutex
	stats CooldownStats
}

// NewRedisCooldownCache creates a Redis-backed cooldown cache.
func NewRedisCooldownCache(client redis.Cmdable, logger *logrus.Logger) *RedisCooldownCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisCooldownCache{
		client: client,
		prefix: "vana:cooldown:",
		logger: logger,
	}
}

func (c *RedisCooldownCache) Active(ctx context.Context, exchange, symbol string) (bool, string) {
	key := c.prefix + cooldownKey(exchange, symbol)

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// fail open: a Redis outage must not silence a venue
			c.logger.WithError(err).WithField("key", key).Warn("Redis cooldown check error")
		}
		c.count(false)
		return false, ""
	}

	var entry CooldownEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to unmarshal cooldown entry")
		c.count(false)
		return false, ""
	}

	c.count(true)
	return true, entry.Reason
}

func (c *RedisCooldownCache) Add(ctx context.Context, exchange, symbol, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	now := time.Now().UTC()
	entry := CooldownEntry{
		Exchange:  strings.ToLower(exchange),
		Symbol:    strings.ToUpper(symbol),
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cooldown entry: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+cooldownKey(exchange, symbol), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cooldown for %s %s: %w", exchange, symbol, err)
	}

	c.mu.Lock()
	c.stats.Adds++
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"exchange": entry.Exchange,
		"symbol":   entry.Symbol,
		"ttl":      ttl.String(),
	}).Info("Venue target placed in rate-limit cooldown")
	return nil
}

func (c *RedisCooldownCache) Remove(ctx context.Context, exchange, symbol string) error {
	return c.client.Del(ctx, c.prefix+cooldownKey(exchange, symbol)).Err()
}

// List returns the active cooldowns sorted by key.
func (c *RedisCooldownCache) List(ctx context.Context) ([]CooldownEntry, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning cooldown keys: %w", err)
	}
	sort.Strings(keys)

	entries := make([]CooldownEntry, 0, len(keys))
	for _, key := range keys {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			// expired between SCAN and GET
			continue
		}
		var entry CooldownEntry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *RedisCooldownCache) GetStats() CooldownStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RedisCooldownCache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
}

// MemoryCooldownCache is the in-process fallback when Redis is not configured.
type MemoryCooldownCache struct {
	mu      sync.Mutex
	entries map[string]CooldownEntry
	stats   CooldownStats
	now     func() time.Time
}

func NewMemoryCooldownCache() *MemoryCooldownCache {
	return &MemoryCooldownCache{
		entries: make(map[string]CooldownEntry),
		now:     time.Now,
	}
}

func (c *MemoryCooldownCache) Active(ctx context.Context, exchange, symbol string) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cooldownKey(exchange, symbol)
	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return false, ""
	}
	if !c.now().Before(entry.ExpiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		return false, ""
	}
	c.stats.Hits++
	return true, entry.Reason
}

func (c *MemoryCooldownCache) Add(ctx context.Context, exchange, symbol, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[cooldownKey(exchange, symbol)] = CooldownEntry{
		Exchange:  strings.ToLower(exchange),
		Symbol:    strings.ToUpper(symbol),
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	c.stats.Adds++
	return nil
}

func (c *MemoryCooldownCache) Remove(ctx context.Context, exchange, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cooldownKey(exchange, symbol))
	return nil
}

func (c *MemoryCooldownCache) List(ctx context.Context) ([]CooldownEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]string, 0, len(c.entries))
	for key, entry := range c.entries {
		if now.Before(entry.ExpiresAt) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	entries := make([]CooldownEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, c.entries[key])
	}
	return entries, nil
}

func (c *MemoryCooldownCache) GetStats() CooldownStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
