package detector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"FuelPriceMonitor/internal/domain"
)

// Loader fetches the stored baseline for a series; it returns domain.ErrNotFound when absent.
type Loader func(ctx context.Context, key domain.SeriesKey) (domain.Baseline, error)

type cell struct {
	mu       sync.Mutex
	loaded   bool
	touched  bool
	baseline domain.Baseline
}

// Arena maps series keys to independently lockable baseline cells. The map itself is
// guarded by a short-lived lock; baseline mutation only takes the cell's lock, so
// distinct series proceed in parallel while updates to one series are serialized.
type Arena struct {
	mu    sync.Mutex
	cells map[domain.SeriesKey]*cell
	load  Loader
}

// NewArena builds an empty arena backed by load (may be nil for empty baselines).
func NewArena(load Loader) *Arena {
	return &Arena{cells: make(map[domain.SeriesKey]*cell), load: load}
}

func (a *Arena) cell(key domain.SeriesKey) *cell {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.cells[key]
	if !ok {
		c = &cell{}
		a.cells[key] = c
	}
	return c
}

// With runs fn with exclusive access to the baseline of key, loading it on first use.
// Changes made by fn are kept when it returns nil.
func (a *Arena) With(ctx context.Context, key domain.SeriesKey, fn func(b *domain.Baseline) error) error {
	c := a.cell(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		b, err := a.loadBaseline(ctx, key)
		if err != nil {
			return err
		}
		c.baseline = b
		c.loaded = true
	}

	working := c.baseline
	if err := fn(&working); err != nil {
		return err
	}
	c.baseline = working
	c.touched = true
	return nil
}

// View runs fn with a copy of the baseline of key under the same exclusion as With,
// without marking it for persistence.
func (a *Arena) View(ctx context.Context, key domain.SeriesKey, fn func(b domain.Baseline)) error {
	c := a.cell(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		b, err := a.loadBaseline(ctx, key)
		if err != nil {
			return err
		}
		c.baseline = b
		c.loaded = true
	}

	fn(c.baseline)
	return nil
}

func (a *Arena) loadBaseline(ctx context.Context, key domain.SeriesKey) (domain.Baseline, error) {
	empty := domain.Baseline{Location: key.Location, FuelType: key.FuelType}
	if a.load == nil {
		return empty, nil
	}

	b, err := a.load(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return domain.Baseline{}, fmt.Errorf("load baseline %s: %w", key, err)
	}
	return b, nil
}

// Touched returns every baseline mutated through With, ordered by key.
func (a *Arena) Touched() []domain.Baseline {
	a.mu.Lock()
	keys := make([]domain.SeriesKey, 0, len(a.cells))
	for k := range a.cells {
		keys = append(keys, k)
	}
	a.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Location != keys[j].Location {
			return keys[i].Location < keys[j].Location
		}
		return keys[i].FuelType < keys[j].FuelType
	})

	out := make([]domain.Baseline, 0, len(keys))
	for _, k := range keys {
		c := a.cell(k)
		c.mu.Lock()
		if c.touched {
			out = append(out, c.baseline)
		}
		c.mu.Unlock()
	}
	return out
}
