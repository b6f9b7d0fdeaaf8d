package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeClock lets tests move the breaker through its timeouts.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("binance", cfg, quietLogger())
	cb.now = clock.Now
	cb.lastStateChange = clock.Now()
	return cb, clock
}

var errVenue = errors.New("venue down")

func fail(ctx context.Context) error    { return errVenue }
func succeed(ctx context.Context) error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	// Zero config values fall back to the defaults
	cb := NewCircuitBreaker("mexc", CircuitBreakerConfig{}, nil)

	assert.Equal(t, "mexc", cb.Name())
	assert.Equal(t, DefaultCircuitBreakerConfig(), cb.config)
	assert.Equal(t, Closed, cb.GetState())
	assert.NotNil(t, cb.logger)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	// Consecutive failures open the breaker and later calls fail fast
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), fail), errVenue)
	}
	assert.True(t, cb.IsOpen())

	var called bool
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	stats := cb.GetStats()
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.FailedRequests)
	assert.Equal(t, int64(1), stats.RejectedRequests)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	require.Error(t, cb.Execute(context.Background(), fail))
	require.NoError(t, cb.Execute(context.Background(), succeed))
	require.Error(t, cb.Execute(context.Background(), fail))

	assert.Equal(t, Closed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	// After the timeout one probe is let through; success closes the breaker
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 30 * time.Second})

	require.Error(t, cb.Execute(context.Background(), fail))
	require.True(t, cb.IsOpen())

	clock.Advance(10 * time.Second)
	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)

	clock.Advance(30 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, Closed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})

	require.Error(t, cb.Execute(context.Background(), fail))
	clock.Advance(2 * time.Second)

	require.ErrorIs(t, cb.Execute(context.Background(), fail), errVenue)
	assert.True(t, cb.IsOpen())
	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	// Only MaxRequests probes run while half-open
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, MaxRequests: 1, Timeout: time.Second})

	require.Error(t, cb.Execute(context.Background(), fail))
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, Closed, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	require.Error(t, cb.Execute(context.Background(), fail))
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.Equal(t, Closed, cb.GetState())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}

func TestCircuitBreaker_ConcurrentCallsDoNotSerialize(t *testing.T) {
	// The guarded call runs outside the lock
	cb := NewCircuitBreaker("bybit", CircuitBreakerConfig{}, quietLogger())

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}

func TestCircuitBreakerManager(t *testing.T) {
	m := NewCircuitBreakerManager(CircuitBreakerConfig{FailureThreshold: 1}, quietLogger())

	a := m.Get("bybit")
	assert.Same(t, a, m.Get("bybit"))
	m.Get("binance")
	assert.Equal(t, []string{"binance", "bybit"}, m.Names())

	require.Error(t, a.Execute(context.Background(), fail))
	stats := m.GetAllStats()
	assert.Equal(t, "open", stats["bybit"].State)
	assert.Equal(t, "closed", stats["binance"].State)

	m.ResetAll()
	assert.Equal(t, Closed, a.GetState())
}
