package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/vana-arb-go/internal/arbitrage"
	"github.com/irfndi/vana-arb-go/internal/cache"
	"github.com/irfndi/vana-arb-go/internal/config"
	"github.com/irfndi/vana-arb-go/internal/exchange"
	"github.com/irfndi/vana-arb-go/internal/liquidity"
	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/irfndi/vana-arb-go/internal/telemetry"
	"github.com/irfndi/vana-arb-go/internal/utils"
)

// AdapterSource resolves a venue id to its adapter. *exchange.Registry implements it.
type AdapterSource interface {
	Get(name string) (exchange.Adapter, error)
}

// AggregatorConfig holds the per-cycle settings of the aggregator
type AggregatorConfig struct {
	Targets []config.Target
	// Timeout bounds a whole cycle. Zero leaves it to the caller's context.
	Timeout time.Duration
	// CooldownTTL is how long a rate-limited target is skipped. Zero disables cooldowns.
	CooldownTTL time.Duration
}

// Aggregator fans out to every target, waits for all of them and assembles a snapshot.
type Aggregator struct {
	adapters  AdapterSource
	analyzer  *liquidity.Analyzer
	engine    *arbitrage.Engine
	breakers  *CircuitBreakerManager
	retrier   *Retrier
	cooldowns cache.CooldownCache
	tracer    *telemetry.BusinessTracer
	config    AggregatorConfig
	logger    *logrus.Logger
	now       func() time.Time
}

// NewAggregator creates an aggregator with no circuit breakers or cooldowns.
func NewAggregator(adapters AdapterSource, analyzer *liquidity.Analyzer, engine *arbitrage.Engine, cfg AggregatorConfig, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Aggregator{
		adapters: adapters,
		analyzer: analyzer,
		engine:   engine,
		tracer:   telemetry.NewBusinessTracer(),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithCircuitBreakers routes every venue call through the venue's breaker.
func (a *Aggregator) WithCircuitBreakers(m *CircuitBreakerManager) *Aggregator {
	a.breakers = m
	return a
}

// WithRetrier retries transient venue failures within a cycle.
func (a *Aggregator) WithRetrier(r *Retrier) *Aggregator {
	a.retrier = r
	return a
}

// WithCooldowns skips targets that were rate limited within the cooldown window.
func (a *Aggregator) WithCooldowns(c cache.CooldownCache) *Aggregator {
	a.cooldowns = c
	return a
}

// WithTracer replaces the global-provider tracer.
func (a *Aggregator) WithTracer(t *telemetry.BusinessTracer) *Aggregator {
	a.tracer = t
	return a
}

// Targets returns the configured fetch targets.
func (a *Aggregator) Targets() []config.Target {
	return a.config.Targets
}

// Engine returns the arbitrage engine used by the aggregator.
func (a *Aggregator) Engine() *arbitrage.Engine {
	return a.engine
}

type fetchResult struct {
	quote *models.NormalizedQuote
	err   error
}

// Aggregate runs one cycle. Failed targets are omitted from quotes and
// opportunities and listed in Failures. It returns *utils.AggregationError
// only when no target produced a quote.
func (a *Aggregator) Aggregate(ctx context.Context) (*models.DashboardData, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	targets := a.config.Targets
	ctx, span := a.tracer.TraceAggregation(ctx, len(targets))
	defer span.End()

	start := a.now()
	results := make([]fetchResult, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target config.Target) {
			defer wg.Done()
			results[i] = a.fetch(ctx, target)
		}(i, target)
	}
	wg.Wait()

	quotes := make([]models.NormalizedQuote, 0, len(targets))
	var (
		failures []models.VenueFailure
		errs     []error
	)
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, venueFailure(targets[i], r.err))
			errs = append(errs, r.err)
			continue
		}
		quotes = append(quotes, a.analyzer.Annotate(*r.quote))
	}

	if len(quotes) == 0 {
		attempted := make([]string, len(targets))
		for i, t := range targets {
			attempted[i] = t.String()
		}
		err := &utils.AggregationError{Attempted: attempted, Failures: errs}
		a.tracer.RecordAggregationResult(span, telemetry.AggregationResult{Failures: len(errs)}, err)
		a.logger.WithFields(logrus.Fields{
			"targets":     len(targets),
			"duration_ms": a.now().Sub(start).Milliseconds(),
		}).WithError(err).Error("All venue fetches failed")
		return nil, err
	}

	opportunities := a.engine.Evaluate(quotes)

	data := &models.DashboardData{
		ID:            uuid.NewString(),
		GeneratedAt:   a.now().UTC(),
		Quotes:        quotes,
		Opportunities: opportunities,
		Failures:      failures,
	}

	result := telemetry.AggregationResult{
		Quotes:        len(quotes),
		Failures:      len(failures),
		Opportunities: len(opportunities),
	}
	if best, ok := arbitrage.Best(opportunities, "", false); ok {
		result.Best = &best
	}
	a.tracer.RecordAggregationResult(span, result, nil)

	fields := logrus.Fields{
		"snapshot_id":   data.ID,
		"quotes":        len(quotes),
		"failures":      len(failures),
		"opportunities": len(opportunities),
		"duration_ms":   a.now().Sub(start).Milliseconds(),
	}
	if data.Partial() {
		a.logger.WithFields(fields).Warn("Aggregation completed with partial data")
	} else {
		a.logger.WithFields(fields).Info("Aggregation completed")
	}

	return data, nil
}

// fetch resolves one target. Every error it returns is a *utils.FetchError.
func (a *Aggregator) fetch(ctx context.Context, target config.Target) fetchResult {
	ctx, span := a.tracer.TraceVenueFetch(ctx, target.Exchange, target.Symbol)
	defer span.End()

	result := a.doFetch(ctx, target)
	a.tracer.RecordFetchResult(span, result.err)

	if result.err != nil {
		fields := logrus.Fields{
			"exchange": target.Exchange,
			"symbol":   target.Symbol,
		}
		var fe *utils.FetchError
		if errors.As(result.err, &fe) {
			fields["status_code"] = fe.StatusCode
			fields["rate_limited"] = fe.IsRateLimited()
		}
		a.logger.WithFields(fields).WithError(result.err).Warn("Venue fetch failed, continuing without it")
	}
	return result
}

func (a *Aggregator) doFetch(ctx context.Context, target config.Target) fetchResult {
	adapter, err := a.adapters.Get(target.Exchange)
	if err != nil {
		return fetchResult{err: utils.NewFetchError(target.Exchange, target.Symbol, 0, err)}
	}

	if a.cooldowns != nil {
		if active, _ := a.cooldowns.Active(ctx, target.Exchange, target.Symbol); active {
			return fetchResult{err: utils.NewFetchError(target.Exchange, target.Symbol, http.StatusTooManyRequests,
				&utils.RateLimitError{Venue: target.Exchange, RetryAfter: a.config.CooldownTTL})}
		}
	}

	var (
		quote    *models.NormalizedQuote
		fetchErr error
	)
	fetchOnce := func(ctx context.Context) error {
		quote, fetchErr = adapter.FetchQuote(ctx, target.Symbol)
		return fetchErr
	}
	call := func(ctx context.Context) error {
		if a.retrier != nil {
			_, _ = a.retrier.Do(ctx, target.String(), isTransient, fetchOnce)
		} else {
			_ = fetchOnce(ctx)
		}
		if countsAgainstVenue(fetchErr) {
			return fetchErr
		}
		return nil
	}

	if a.breakers != nil {
		if err := a.breakers.Get(target.Exchange).Execute(ctx, call); errors.Is(err, ErrCircuitOpen) {
			return fetchResult{err: utils.NewFetchError(target.Exchange, target.Symbol, 0, err)}
		}
	} else {
		_ = call(ctx)
	}

	if fetchErr != nil {
		var fe *utils.FetchError
		if !errors.As(fetchErr, &fe) {
			fe = utils.NewFetchError(target.Exchange, target.Symbol, 0, fetchErr)
		}
		if fe.IsRateLimited() {
			a.startCooldown(ctx, target, fe)
		}
		return fetchResult{err: fe}
	}
	if quote == nil {
		return fetchResult{err: utils.NewFetchError(target.Exchange, target.Symbol, 0, errors.New("adapter returned no quote"))}
	}
	return fetchResult{quote: quote}
}

func (a *Aggregator) startCooldown(ctx context.Context, target config.Target, fe *utils.FetchError) {
	if a.cooldowns == nil || a.config.CooldownTTL <= 0 {
		return
	}
	ttl := a.config.CooldownTTL
	var rl *utils.RateLimitError
	if errors.As(fe, &rl) && rl.RetryAfter > ttl {
		ttl = rl.RetryAfter
	}
	// the cycle context may already be spent
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.cooldowns.Add(cctx, target.Exchange, target.Symbol, fe.Error(), ttl); err != nil {
		a.logger.WithError(err).WithField("exchange", target.Exchange).Warn("Failed to record rate-limit cooldown")
	}
}

// countsAgainstVenue reports whether err says something about the venue's
// health rather than about the symbol or the caller.
func countsAgainstVenue(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *utils.ParseError
	if errors.As(err, &pe) {
		return false
	}
	var fe *utils.FetchError
	if errors.As(err, &fe) && !fe.IsRateLimited() && fe.StatusCode >= 400 && fe.StatusCode < 500 {
		return false
	}
	return true
}

// isTransient reports whether an immediate retry of the same request may succeed.
func isTransient(err error) bool {
	if !countsAgainstVenue(err) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *utils.FetchError
	return !errors.As(err, &fe) || !fe.IsRateLimited()
}

func venueFailure(target config.Target, err error) models.VenueFailure {
	failure := models.VenueFailure{
		Exchange: target.Exchange,
		Symbol:   target.Symbol,
		Message:  err.Error(),
	}
	var fe *utils.FetchError
	if errors.As(err, &fe) {
		failure.StatusCode = fe.StatusCode
		failure.RateLimited = fe.IsRateLimited()
	}
	return failure
}
