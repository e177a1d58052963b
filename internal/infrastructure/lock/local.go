package lock

import (
	"context"
	"sync"

	"FuelPriceMonitor/internal/ports"
)

// Local is an in-process lock for single-instance deployments.
type Local struct {
	mu sync.Mutex
}

var _ ports.RunLock = (*Local)(nil)

func NewLocal() *Local {
	return &Local{}
}

// TryAcquire never blocks.
func (l *Local) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !l.mu.TryLock() {
		return nil, false, nil
	}

	var once sync.Once
	release := func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}
	return release, true, nil
}
