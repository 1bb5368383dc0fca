package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/movieverse/internal/config"
	"github.com/user/movieverse/internal/metrics"
	"github.com/user/movieverse/internal/store"
)

// Scheduler periodically refreshes the platform gauges
type Scheduler struct {
	reporter store.Reporter
	config   *config.StatsConfig
	running  atomic.Bool
	mu       sync.Mutex // one refresh at a time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(reporter store.Reporter, cfg *config.StatsConfig) *Scheduler {
	return &Scheduler{
		reporter: reporter,
		config:   cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start refreshes once immediately and then on every interval tick
func (s *Scheduler) Start(ctx context.Context) {
	if !s.config.Enabled {
		log.Info().Msg("Stats refresher is disabled")
		return
	}

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.TryRun(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.config.Interval).Msg("Stats refresher started")

	for {
		select {
		case <-ticker.C:
			if !s.TryRun(ctx) {
				log.Warn().Msg("Stats refresh already running, skipping this tick")
			}
		case <-s.stopCh:
			log.Info().Msg("Stats refresher stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Stats refresher context cancelled")
			return
		}
	}
}

// RunOnce computes platform totals and publishes them as gauges
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	stats, err := s.reporter.PlatformStats(ctx)
	metrics.RecordStatsRefresh(time.Since(start))
	if err != nil {
		metrics.RecordError("stats_refresh")
		return err
	}

	metrics.UpdatePlatformStats(stats)
	log.Debug().
		Int64("movies", stats.TotalMovies).
		Int64("views", stats.TotalViews).
		Int64("likes", stats.TotalLikes).
		Msg("Platform stats refreshed")
	return nil
}

// TryRun refreshes now unless a refresh is in flight.
// Returns false if it was skipped.
func (s *Scheduler) TryRun(ctx context.Context) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	if err := s.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("Stats refresh failed")
	}
	return true
}

// Stop gracefully stops the scheduler; calling it twice is safe
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping stats refresher...")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// IsRunning returns true if a refresh is currently running
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}
