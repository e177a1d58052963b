package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/ports"
)

// Recorder implements ports.Metrics using Prometheus.
type Recorder struct {
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	recordsTotal    *prometheus.CounterVec
	rejectedTotal   *prometheus.CounterVec
	anomaliesTotal  *prometheus.CounterVec
	lastRun         *prometheus.GaugeVec
	fetchAttempts   prometheus.Histogram
	fetchFailures   prometheus.Counter
	deliveriesTotal *prometheus.CounterVec
}

var _ ports.Metrics = (*Recorder)(nil)

// New registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelmonitor_runs_total",
				Help: "Pipeline runs by final status and failure reason",
			},
			[]string{"status", "reason"},
		),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuelmonitor_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		recordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelmonitor_records_total",
				Help: "Raw records by outcome",
			},
			[]string{"outcome"},
		),
		rejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelmonitor_rejected_records_total",
				Help: "Rejected records by reason",
			},
			[]string{"reason"},
		),
		anomaliesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelmonitor_anomalies_total",
				Help: "Detected anomalies by severity",
			},
			[]string{"severity"},
		),
		lastRun: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuelmonitor_last_run_timestamp_seconds",
				Help: "Unix time the last run finished, by status",
			},
			[]string{"status"},
		),
		fetchAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuelmonitor_fetch_attempts",
			Help:    "Attempts needed to fetch a daily batch",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
		fetchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "fuelmonitor_fetch_failures_total",
			Help: "Fetches that failed after every retry",
		}),
		deliveriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelmonitor_deliveries_total",
				Help: "Summary deliveries by sink and result",
			},
			[]string{"sink", "result"},
		),
	}
}

// ObserveRun records the counts of a finished run.
func (r *Recorder) ObserveRun(s domain.RunReportSummary, duration time.Duration) {
	r.runsTotal.WithLabelValues(string(s.Status), string(s.Reason)).Inc()
	r.runDuration.Observe(duration.Seconds())

	r.recordsTotal.WithLabelValues("fetched").Add(float64(s.TotalFetched))
	r.recordsTotal.WithLabelValues("accepted").Add(float64(s.Accepted))
	r.recordsTotal.WithLabelValues("corrected").Add(float64(s.Corrected))
	r.recordsTotal.WithLabelValues("rejected").Add(float64(s.Rejected))

	for reason, n := range s.RejectedByReason {
		r.rejectedTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
	for sev, n := range s.AnomaliesBySeverity {
		r.anomaliesTotal.WithLabelValues(string(sev)).Add(float64(n))
	}

	finished := s.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	r.lastRun.WithLabelValues(string(s.Status)).Set(float64(finished.Unix()))
}

func (r *Recorder) ObserveFetch(attempts int, err error) {
	r.fetchAttempts.Observe(float64(attempts))
	if err != nil {
		r.fetchFailures.Inc()
	}
}

func (r *Recorder) ObserveDelivery(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.deliveriesTotal.WithLabelValues(sink, result).Inc()
}
