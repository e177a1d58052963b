package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"FuelPriceMonitor/internal/ports"
	"FuelPriceMonitor/pkg/logger"
)

// CronScheduler fires the job on a five-field cron expression in a fixed timezone.
type CronScheduler struct {
	spec   string
	loc    *time.Location
	logger *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates spec up front so a bad expression fails at startup.
func NewCronScheduler(spec string, loc *time.Location, log *slog.Logger) (*CronScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &CronScheduler{spec: spec, loc: loc, logger: log}, nil
}

// Start registers job. Overlapping firings are skipped rather than queued.
// Cancelling ctx stops the schedule.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cl := cron.PrintfLogger(logger.New(c.logger, "cron", slog.LevelWarn))
	sched := cron.New(
		cron.WithLocation(c.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := sched.AddFunc(c.spec, func() { job(time.Now().In(c.loc)) }); err != nil {
		return fmt.Errorf("schedule %q: %w", c.spec, err)
	}
	sched.Start()
	c.cron = sched

	if e := sched.Entries(); len(e) > 0 {
		c.logger.Info("scheduler started", "spec", c.spec, "timezone", c.loc.String(), "next", e[0].Next)
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts new firings and waits for a running job until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	sched := c.cron
	c.cron = nil
	c.mu.Unlock()

	if sched == nil {
		return nil
	}

	done := sched.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running job: %w", ctx.Err())
	}
}

// Next reports the next firing after t.
func (c *CronScheduler) Next(t time.Time) time.Time {
	s, err := cron.ParseStandard(c.spec)
	if err != nil {
		return time.Time{}
	}
	return s.Next(t.In(c.loc))
}
