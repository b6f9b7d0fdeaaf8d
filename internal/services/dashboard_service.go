package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/irfndi/vana-arb-go/internal/cache"
	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/irfndi/vana-arb-go/internal/utils"
)

// DefaultRefreshInterval is used when no interval is configured.
const DefaultRefreshInterval = 30 * time.Second

// DashboardStatus is the refresh loop state reported by /health.
type DashboardStatus struct {
	Running        bool      `json:"running"`
	LastRefresh    time.Time `json:"last_refresh,omitempty"`
	LastSnapshotID string    `json:"last_snapshot_id,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	Refreshes      int64     `json:"refreshes"`
	Failures       int64     `json:"failures"`
}

// DashboardService keeps the latest dashboard snapshot fresh. It refreshes on
// a ticker and on demand, stores every successful snapshot in the snapshot
// cache and hands it to the notifier.
type DashboardService struct {
	aggregator *Aggregator
	snapshots  cache.SnapshotCache
	notifier   *NotificationService
	interval   time.Duration
	logger     *logrus.Logger

	group singleflight.Group

	mu          sync.RWMutex
	isRunning   bool
	lastRefresh time.Time
	lastID      string
	lastError   error
	refreshes   int64
	failures    int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDashboardService creates the service. A nil snapshot cache uses an
// in-memory cache that never expires; a nil notifier disables alerts.
func NewDashboardService(aggregator *Aggregator, snapshots cache.SnapshotCache, notifier *NotificationService, interval time.Duration, logger *logrus.Logger) *DashboardService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if snapshots == nil {
		snapshots = cache.NewMemorySnapshotCache(0)
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DashboardService{
		aggregator: aggregator,
		snapshots:  snapshots,
		notifier:   notifier,
		interval:   interval,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins the periodic refresh loop
func (s *DashboardService) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("dashboard service is already running")
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return fmt.Errorf("dashboard service has been stopped")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"interval": s.interval.String(),
		"targets":  len(s.aggregator.Targets()),
		"alerts":   s.notifier.Enabled(),
	}).Info("Starting dashboard refresh service")

	s.wg.Add(1)
	go s.refreshLoop()
	return nil
}

// Stop cancels the loop and any in-flight cycle, then waits for the loop to exit.
func (s *DashboardService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("Stopping dashboard refresh service")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Dashboard refresh service stopped")
}

// IsRunning returns true if the refresh loop is active
func (s *DashboardService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status returns the refresh loop state.
func (s *DashboardService) Status() DashboardStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := DashboardStatus{
		Running:        s.isRunning,
		LastRefresh:    s.lastRefresh,
		LastSnapshotID: s.lastID,
		Refreshes:      s.refreshes,
		Failures:       s.failures,
	}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}
	return status
}

func (s *DashboardService) refreshLoop() {
	defer s.wg.Done()

	if _, err := s.Refresh(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.WithError(err).Error("Initial dashboard refresh failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.WithError(err).Error("Dashboard refresh failed")
			}
		}
	}
}

// Refresh runs one aggregation cycle. Concurrent callers share a single cycle.
// The cycle runs detached from the caller's context and is bounded by the
// aggregator timeout and the service lifetime, so a caller that gives up only
// stops waiting. On success the snapshot is cached and alerts are sent; on
// failure the previous snapshot is left untouched.
func (s *DashboardService) Refresh(ctx context.Context) (*models.DashboardData, error) {
	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()
		return s.refresh(cycleCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("Joined an in-flight dashboard refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.DashboardData), nil
	}
}

func (s *DashboardService) refresh(ctx context.Context) (*models.DashboardData, error) {
	data, err := s.aggregator.Aggregate(ctx)

	// a cycle cut short by shutdown says nothing about the venues
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil, err
	}

	s.mu.Lock()
	if err != nil {
		s.failures++
		s.lastError = err
	} else {
		s.refreshes++
		s.lastError = nil
		s.lastRefresh = data.GeneratedAt
		s.lastID = data.ID
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if err := s.snapshots.Set(ctx, data); err != nil {
		s.logger.WithError(err).WithField("snapshot_id", data.ID).Warn("Failed to cache dashboard snapshot")
	}

	if _, err := s.notifier.NotifyOpportunities(ctx, data); err != nil {
		s.logger.WithError(err).WithField("snapshot_id", data.ID).Warn("Failed to send opportunity alert")
	}

	return data, nil
}

// Latest returns the cached snapshot, refreshing when nothing is cached. The
// cached snapshot is marked stale when the most recent refresh failed. When
// every target fails and nothing is cached the *utils.AggregationError is returned.
func (s *DashboardService) Latest(ctx context.Context) (*models.DashboardData, error) {
	if cached, ok := s.snapshots.Get(ctx); ok {
		if s.lastRefreshFailed() {
			return markStale(cached), nil
		}
		return cached, nil
	}
	return s.RefreshOrStale(ctx)
}

// RefreshOrStale refreshes and falls back to the cached snapshot, marked
// stale, when every target failed.
func (s *DashboardService) RefreshOrStale(ctx context.Context) (*models.DashboardData, error) {
	data, err := s.Refresh(ctx)
	if err == nil {
		return data, nil
	}

	var aggErr *utils.AggregationError
	if !errors.As(err, &aggErr) {
		return nil, err
	}
	if cached, ok := s.snapshots.Get(ctx); ok {
		s.logger.WithFields(logrus.Fields{
			"snapshot_id":  cached.ID,
			"generated_at": cached.GeneratedAt,
		}).Warn("All venues failed, serving stale snapshot")
		return markStale(cached), nil
	}
	return nil, err
}

func (s *DashboardService) lastRefreshFailed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError != nil
}

func markStale(data *models.DashboardData) *models.DashboardData {
	stale := *data
	stale.Stale = true
	return &stale
}
