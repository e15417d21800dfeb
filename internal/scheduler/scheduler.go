package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"weather-etl/internal/services"
	"weather-etl/pkg/logging"
)

// Refresher rebuilds the transformed table from its source
type Refresher interface {
	RefreshTransformed(ctx context.Context, sourceTable string) (*services.LoadResult, error)
}

// Scheduler periodically re-runs the transform inside the API server
type Scheduler struct {
	scheduler   *gocron.Scheduler
	refresher   Refresher
	sourceTable string
	interval    time.Duration
	timeout     time.Duration
	logger      *logging.StructuredLogger
}

// New creates a new Scheduler. A non-positive interval disables it.
func New(refresher Refresher, sourceTable string, interval time.Duration, logger *logging.StructuredLogger) *Scheduler {
	return &Scheduler{
		scheduler:   gocron.NewScheduler(time.UTC),
		refresher:   refresher,
		sourceTable: sourceTable,
		interval:    interval,
		timeout:     interval,
		logger:      logger,
	}
}

// Start schedules the refresh job, first run immediately, and returns
func (s *Scheduler) Start() error {
	ctx := context.Background()

	if s.interval <= 0 {
		s.logger.Info(ctx, "[SCHEDULER] Periodic transform disabled", logging.Fields{})
		return nil
	}

	// a slow run is never overlapped by the next tick
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "[SCHEDULER] Periodic transform scheduled", logging.Fields{
		"interval":     s.interval.String(),
		"source_table": s.sourceTable,
	})

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.refresher.RefreshTransformed(ctx, s.sourceTable)
	if err != nil {
		s.logger.Error(ctx, "[SCHEDULER_ERROR] Transform refresh failed", logging.Fields{
			"source_table": s.sourceTable,
		}, err)
		return
	}

	s.logger.Info(ctx, "[SCHEDULER] Transform refreshed", logging.Fields{
		"rows":     result.Loaded,
		"inserted": result.Inserted,
	})
}

// Stop stops the scheduler and cancels any future jobs
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
