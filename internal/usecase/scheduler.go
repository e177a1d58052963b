package usecase

import (
	"context"
	"log/slog"
	"time"

	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/logging"
	"FuelPriceMonitor/internal/ports"
)

// Scheduler wires the cron driver with the run coordinator and the run lock.
type Scheduler struct {
	driver      ports.Scheduler
	coordinator *Coordinator
	lock        ports.RunLock
	logger      *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs; lock may be nil.
func NewScheduler(driver ports.Scheduler, coordinator *Coordinator, lock ports.RunLock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{driver: driver, coordinator: coordinator, lock: lock, logger: logger}
}

// RunOnce executes a single run unless another holder owns the run lock.
// The bool reports whether a run took place.
func (s *Scheduler) RunOnce(ctx context.Context, trigger time.Time) (domain.RunReport, bool) {
	if s.coordinator == nil {
		return domain.RunReport{}, false
	}

	if s.lock != nil {
		release, ok, err := s.lock.TryAcquire(ctx)
		if err != nil {
			s.logger.Error("acquire run lock", "error", err)
			return domain.RunReport{}, false
		}
		if !ok {
			s.logger.Info("previous run still in progress, skipping", "trigger", trigger)
			return domain.RunReport{}, false
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release run lock", "error", err)
			}
		}()
	}

	return s.coordinator.Run(ctx, trigger), true
}

// Start registers the coordinator with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.coordinator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.RunOnce(ctx, trigger)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
