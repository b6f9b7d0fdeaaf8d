package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis instance using miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		s.Close()
	})

	return client, s
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func sampleSnapshot() *models.DashboardData {
	return &models.DashboardData{
		ID:          "5f1c2c1e-9d4b-4b7a-9a55-8f2f3f9b8c11",
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Quotes: []models.NormalizedQuote{{
			Exchange: "binance",
			Symbol:   "VANAUSDT",
			MidPrice: decimal.RequireFromString("7.215"),
		}},
		Opportunities: []models.ArbitrageOpportunity{{
			Kind:  models.KindCrossExchange,
			Gross: decimal.RequireFromString("0.004"),
			Net:   decimal.RequireFromString("0.002"),
		}},
		Failures: []models.VenueFailure{{Exchange: "bybit", Symbol: "VANAUSDT", Message: "timeout"}},
	}
}

func TestRedisSnapshotCache_SetAndGet(t *testing.T) {
	// A stored snapshot reads back with its decimals intact
	client, _ := setupTestRedis(t)
	cache := NewRedisSnapshotCache(client, 5*time.Minute, testLogger())
	ctx := context.Background()

	_, found := cache.Get(ctx)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, sampleSnapshot()))

	got, found := cache.Get(ctx)
	require.True(t, found)
	assert.Equal(t, "5f1c2c1e-9d4b-4b7a-9a55-8f2f3f9b8c11", got.ID)
	require.Len(t, got.Quotes, 1)
	assert.True(t, got.Quotes[0].MidPrice.Equal(decimal.RequireFromString("7.215")))
	require.Len(t, got.Opportunities, 1)
	assert.Equal(t, models.KindCrossExchange, got.Opportunities[0].Kind)
	assert.Len(t, got.Failures, 1)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.InDelta(t, 50.0, stats.HitRate(), 0.001)
}

func TestRedisSnapshotCache_Expires(t *testing.T) {
	client, s := setupTestRedis(t)
	cache := NewRedisSnapshotCache(client, time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, sampleSnapshot()))
	assert.True(t, s.Exists("vana:snapshot:latest"))

	s.FastForward(2 * time.Minute)
	_, found := cache.Get(ctx)
	assert.False(t, found)
}

func TestRedisSnapshotCache_CorruptEntry(t *testing.T) {
	client, s := setupTestRedis(t)
	cache := NewRedisSnapshotCache(client, time.Minute, testLogger())

	require.NoError(t, s.Set("vana:snapshot:latest", "{not json"))
	_, found := cache.Get(context.Background())
	assert.False(t, found)
	assert.Equal(t, int64(1), cache.GetStats().Misses)
}

func TestRedisSnapshotCache_NilAndClear(t *testing.T) {
	client, s := setupTestRedis(t)
	cache := NewRedisSnapshotCache(client, time.Minute, testLogger())
	ctx := context.Background()

	assert.Error(t, cache.Set(ctx, nil))

	require.NoError(t, cache.Set(ctx, sampleSnapshot()))
	require.NoError(t, s.Set("unrelated", "keep"))
	require.NoError(t, cache.Clear(ctx))

	assert.False(t, s.Exists("vana:snapshot:latest"))
	assert.True(t, s.Exists("unrelated"))
}

func TestRedisSnapshotCache_RedisDown(t *testing.T) {
	// Redis failures surface as misses on read and errors on write
	client, s := setupTestRedis(t)
	cache := NewRedisSnapshotCache(client, time.Minute, testLogger())
	s.Close()

	_, found := cache.Get(context.Background())
	assert.False(t, found)
	assert.Error(t, cache.Set(context.Background(), sampleSnapshot()))
}

func TestMemorySnapshotCache(t *testing.T) {
	cache := NewMemorySnapshotCache(time.Minute)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	_, found := cache.Get(ctx)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, sampleSnapshot()))
	got, found := cache.Get(ctx)
	require.True(t, found)
	assert.Equal(t, "binance", got.Quotes[0].Exchange)

	now = now.Add(2 * time.Minute)
	_, found = cache.Get(ctx)
	assert.False(t, found)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}
