package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/ports"
	"FuelPriceMonitor/internal/scanner"
)

// StrategySource implements PriceSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	limiter  *rate.Limiter
	clock    func() time.Time
	logger   *slog.Logger
}

var _ ports.PriceSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined sources.
// perSecond paces requests across sources; zero disables pacing.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, perSecond float64, log *slog.Logger) *StrategySource {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &StrategySource{
		registry: reg,
		sources:  sources,
		limiter:  rate.NewLimiter(limit, 1),
		clock:    time.Now,
		logger:   log,
	}
}

// Fetch runs every configured source for day. Any failing source fails the whole
// attempt so the coordinator retries the batch as a unit.
func (s *StrategySource) Fetch(ctx context.Context, day time.Time) ([]domain.RawEntry, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch daily", "sources", len(s.sources), "day", day.Format(domain.DateLayout))

	var aggregated []domain.RawEntry
	for _, src := range s.sources {
		strategy, err := s.registry.Resolve(src.Scanner)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("source %s: wait for rate limiter: %w", src.Name, err)
		}

		req := scanner.Request{
			Day:        day,
			SourceName: src.Name,
			URL:        src.URL,
			Options:    src.Options,
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scan source %s: %w", src.Name, err)
		}

		captured := s.clock().UTC()
		for i := range results {
			if results[i].Source == "" {
				results[i].Source = src.Name
			}
			if results[i].CapturedAt.IsZero() {
				results[i].CapturedAt = captured
			}
		}
		s.debug("source produced entries", "source", src.Name, "scanner", src.Scanner, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "total_entries", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
