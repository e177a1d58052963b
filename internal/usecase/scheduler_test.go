package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FuelPriceMonitor/internal/domain"
)

type fakeLock struct {
	held     bool
	err      error
	acquired int
	released int
}

func (l *fakeLock) TryAcquire(context.Context) (func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	l.acquired++
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, true, nil
}

type fakeDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *fakeDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunOnceHoldsLock(t *testing.T) {
	t.Parallel()

	store := seededStore()
	sink := &captureSink{}
	coord := newTestCoordinator(staticSource(entry("Nairobi", "PMS", "181", "2024-06-10")), store, sink)
	lock := &fakeLock{}
	s := NewScheduler(nil, coord, lock, nil)

	report, ran := s.RunOnce(context.Background(), runTime)
	if !ran {
		t.Fatalf("expected run to execute")
	}
	if report.Status != domain.StatusSuccess || report.Accepted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if lock.acquired != 1 || lock.released != 1 || lock.held {
		t.Fatalf("lock not acquired and released once: %+v", lock)
	}
	if len(sink.got) != 1 {
		t.Fatalf("expected one delivered summary, got %d", len(sink.got))
	}
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	source := staticSource(entry("Nairobi", "PMS", "181", "2024-06-10"))
	coord := newTestCoordinator(source, seededStore(), &captureSink{})
	s := NewScheduler(nil, coord, &fakeLock{held: true}, nil)

	if _, ran := s.RunOnce(context.Background(), runTime); ran {
		t.Fatalf("expected run to be skipped")
	}
	if source.calls != 0 {
		t.Fatalf("source must not be called, got %d calls", source.calls)
	}

	s = NewScheduler(nil, coord, &fakeLock{err: errors.New("redis down")}, nil)
	if _, ran := s.RunOnce(context.Background(), runTime); ran {
		t.Fatalf("expected run to be skipped on lock error")
	}
}

func TestSchedulerStartRegistersJob(t *testing.T) {
	t.Parallel()

	store := seededStore()
	driver := &fakeDriver{}
	coord := newTestCoordinator(staticSource(entry("Nairobi", "PMS", "181", "2024-06-10")), store, &captureSink{})
	s := NewScheduler(driver, coord, nil, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if driver.job == nil {
		t.Fatalf("job not registered")
	}
	driver.job(runTime)
	if store.commits != 1 {
		t.Fatalf("expected triggered run to commit, got %d commits", store.commits)
	}

	if err := s.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("stop: %v stopped=%v", err, driver.stopped)
	}
}
