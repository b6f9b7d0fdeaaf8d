package services

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryPolicy retries a venue call once after a short pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    1,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retrier re-runs an operation while its error is retryable.
type Retrier struct {
	policy RetryPolicy
	logger *logrus.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier. Non-positive delays and factors fall back to DefaultRetryPolicy.
func NewRetrier(policy RetryPolicy, logger *logrus.Logger) *Retrier {
	defaults := DefaultRetryPolicy()
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = defaults.InitialDelay
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = defaults.BackoffFactor
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Retrier{policy: policy, logger: logger, sleep: sleepContext}
}

// Do runs fn until it succeeds, returns a non-retryable error, the retries
// are used up or ctx is done. It returns the number of attempts and the last error.
func (r *Retrier) Do(ctx context.Context, operation string, retryable func(error) bool, fn func(context.Context) error) (int, error) {
	delay := r.policy.InitialDelay
	var err error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 0 {
				r.logger.WithFields(logrus.Fields{
					"operation": operation,
					"attempts":  attempt + 1,
				}).Info("Operation recovered after retry")
			}
			return attempt + 1, nil
		}

		if attempt == r.policy.MaxRetries || ctx.Err() != nil || !retryable(err) {
			return attempt + 1, err
		}

		r.logger.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt + 1,
			"delay":     delay.String(),
		}).WithError(err).Debug("Operation failed, retrying")

		if serr := r.sleep(ctx, r.jitter(delay)); serr != nil {
			return attempt + 1, err
		}
		delay = time.Duration(float64(delay) * r.policy.BackoffFactor)
		if delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
	return r.policy.MaxRetries + 1, err
}

// jitter spreads delay by up to 25% either way.
func (r *Retrier) jitter(delay time.Duration) time.Duration {
	if !r.policy.JitterEnabled {
		return delay
	}
	spread := float64(delay) * 0.25 * (2*rand.Float64() - 1)
	return delay + time.Duration(spread)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
