package ports

import (
	"context"
	"time"

	"FuelPriceMonitor/internal/domain"
)

// PriceSource pulls the raw price batch for a day from upstream providers.
type PriceSource interface {
	Fetch(ctx context.Context, day time.Time) ([]domain.RawEntry, error)
}

// BatchStore is what the run coordinator needs from durable storage.
// Lookups return domain.ErrNotFound when the key is absent.
// CommitBatch is atomic: either every row of the batch is visible afterwards or none is.
type BatchStore interface {
	LookupBaseline(ctx context.Context, key domain.SeriesKey) (domain.Baseline, error)
	LookupObservation(ctx context.Context, key domain.Key) (domain.Observation, error)
	CommitBatch(ctx context.Context, batch domain.Batch) error
	RecordRun(ctx context.Context, summary domain.RunReportSummary) error
}

// PriceFilter narrows GET /prices.
type PriceFilter struct {
	Location string
	FuelType domain.FuelType
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// AlertFilter narrows GET /alerts.
type AlertFilter struct {
	Severity domain.Severity
	Location string
	FuelType domain.FuelType
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// QueryStore backs the read/alert API.
type QueryStore interface {
	ListPrices(ctx context.Context, filter PriceFilter) ([]domain.Observation, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]domain.Anomaly, error)
	InsertAlert(ctx context.Context, anomaly domain.Anomaly) error
	ListRuns(ctx context.Context, limit int) ([]domain.RunReportSummary, error)
	Ping(ctx context.Context) error
}

// Storage is the full repository surface implemented by the SQL backends.
type Storage interface {
	BatchStore
	QueryStore
	Close() error
}

// Sink delivers a run summary to one outbound channel (Telegram, webhook, Kafka, email).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, summary domain.RunReportSummary) error
}

// Metrics records pipeline outcomes.
type Metrics interface {
	ObserveRun(summary domain.RunReportSummary, duration time.Duration)
	ObserveFetch(attempts int, err error)
	ObserveDelivery(sink string, err error)
}

// RunLock prevents overlapping runs across processes.
// TryAcquire reports false without error when another holder owns the lock.
type RunLock interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
