package notify

import (
	"context"
	"errors"
	"log/slog"

	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/ports"
)

// Fanout delivers one summary to every configured sink. A failing sink does not
// stop the others; failures come back joined as *domain.DeliveryError values.
type Fanout struct {
	sinks   []ports.Sink
	metrics ports.Metrics
	logger  *slog.Logger
}

var _ ports.Sink = (*Fanout)(nil)

// NewFanout builds a fan-out sink; metrics and logger may be nil.
func NewFanout(logger *slog.Logger, metrics ports.Metrics, sinks ...ports.Sink) *Fanout {
	return &Fanout{sinks: sinks, metrics: metrics, logger: logger}
}

func (f *Fanout) Name() string { return "fanout" }

// Len reports how many sinks are wired.
func (f *Fanout) Len() int { return len(f.sinks) }

// Deliver sends summary to each sink in order.
func (f *Fanout) Deliver(ctx context.Context, summary domain.RunReportSummary) error {
	var errs []error
	for _, sink := range f.sinks {
		err := sink.Deliver(ctx, summary)
		if f.metrics != nil {
			f.metrics.ObserveDelivery(sink.Name(), err)
		}
		if err != nil {
			errs = append(errs, &domain.DeliveryError{Sink: sink.Name(), Err: err})
			continue
		}
		if f.logger != nil {
			f.logger.Debug("summary delivered", "sink", sink.Name(), "run_id", summary.RunID)
		}
	}
	return errors.Join(errs...)
}
