package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/detector"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/logging"
	"FuelPriceMonitor/internal/normalizer"
	"FuelPriceMonitor/internal/notify"
	"FuelPriceMonitor/internal/ports"
	"FuelPriceMonitor/internal/resolver"
)

var errEmptyBatch = errors.New("source returned no entries")

// CoordinatorDeps wires all driven adapters into the run coordinator.
type CoordinatorDeps struct {
	Source     ports.PriceSource
	Store      ports.BatchStore
	Normalizer *normalizer.Normalizer
	Detector   *detector.Detector
	Sink       ports.Sink
	Metrics    ports.Metrics
	Pipeline   config.PipelineConfig
	Location   *time.Location
	Clock      func() time.Time
	Logger     *slog.Logger
}

// Coordinator drives one pipeline execution through its stages:
// fetch, normalize, resolve, detect, persist and summarize.
type Coordinator struct {
	source     ports.PriceSource
	store      ports.BatchStore
	normalizer *normalizer.Normalizer
	detector   *detector.Detector
	sink       ports.Sink
	metrics    ports.Metrics
	cfg        config.PipelineConfig
	loc        *time.Location
	clock      func() time.Time
	logger     *slog.Logger
}

// NewCoordinator constructs the orchestration component.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	c := &Coordinator{
		source:     deps.Source,
		store:      deps.Store,
		normalizer: deps.Normalizer,
		detector:   deps.Detector,
		sink:       deps.Sink,
		metrics:    deps.Metrics,
		cfg:        deps.Pipeline,
		loc:        deps.Location,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}

	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.normalizer == nil {
		c.normalizer = normalizer.New(config.NormalizerConfig{}, c.loc)
	}
	if c.detector == nil {
		c.detector = detector.New(config.DetectorConfig{})
	}

	if c.cfg.Workers < 1 {
		c.cfg.Workers = 1
	}
	if c.cfg.FetchRetries < 0 {
		c.cfg.FetchRetries = 0
	}
	if c.cfg.BackoffInitial <= 0 {
		c.cfg.BackoffInitial = 2 * time.Second
	}
	if c.cfg.BackoffMax < c.cfg.BackoffInitial {
		c.cfg.BackoffMax = c.cfg.BackoffInitial
	}
	if c.cfg.FetchTimeout <= 0 {
		c.cfg.FetchTimeout = time.Minute
	}
	if c.cfg.PersistTimeout <= 0 {
		c.cfg.PersistTimeout = 30 * time.Second
	}
	if c.cfg.TopN <= 0 {
		c.cfg.TopN = notify.DefaultTopN
	}
	return c
}

type run struct {
	stage  Stage
	report domain.RunReport
	logger *slog.Logger
}

func (r *run) advance(e Event) {
	next, err := Transition(r.stage, e)
	if err != nil {
		r.logger.Error("invalid stage transition", "error", err)
		return
	}
	r.logger.Info("stage transition", "from", r.stage, "to", next)
	r.stage = next
}

func (r *run) fail(reason domain.FailureReason, err error) {
	r.advance(EventFail)
	r.report.Status = domain.StatusFailed
	r.report.Reason = reason
	if err != nil {
		r.report.Error = err.Error()
	}
}

// Run executes one pass for the calendar day of now (in the configured timezone).
// It always returns a finished report; failures are expressed through its status.
func (c *Coordinator) Run(ctx context.Context, now time.Time) domain.RunReport {
	local := now.In(c.loc)
	r := &run{
		stage: StageNotStarted,
		report: domain.RunReport{
			RunID:      uuid.NewString(),
			RunDate:    domain.CalendarDate(local),
			StartedAt:  c.clock(),
			Rejections: map[domain.RejectionReason]int{},
		},
	}
	r.logger = c.logger.With("run_id", r.report.RunID, "run_date", r.report.RunDate.Format(domain.DateLayout))

	c.execute(ctx, r, local)

	r.report.FinishedAt = c.clock()
	c.finish(ctx, r, notify.Summarize(r.report, c.cfg.TopN))
	return r.report
}

func (c *Coordinator) execute(ctx context.Context, r *run, now time.Time) {
	if err := ctx.Err(); err != nil {
		r.fail(domain.ReasonCancelled, err)
		return
	}
	r.advance(EventStart)

	raw, attempts, err := c.fetch(ctx, r, now)
	r.report.FetchAttempts = attempts
	if c.metrics != nil {
		c.metrics.ObserveFetch(attempts, err)
	}
	if err != nil {
		reason := domain.ReasonFetchFailed
		if ctx.Err() != nil {
			reason = domain.ReasonCancelled
		}
		r.fail(reason, err)
		return
	}
	r.report.TotalFetched = len(raw)
	r.advance(EventFetched)

	batch, err := c.process(ctx, r, raw, now)
	if err != nil {
		r.fail(domain.ReasonPersistFailed, err)
		return
	}
	if r.report.Rejected == r.report.TotalFetched {
		r.fail(domain.ReasonNoValidRecords, fmt.Errorf("all %d entries rejected", r.report.Rejected))
		return
	}
	r.advance(EventProcessed)

	if err := c.persist(ctx, batch); err != nil {
		r.fail(domain.ReasonPersistFailed, err)
		return
	}
	r.report.Written = batch.Observations
	r.report.Anomalies = batch.Anomalies
	r.advance(EventCommitted)

	switch {
	case r.report.Cancelled:
		r.report.Status = domain.StatusPartialFailure
		r.report.Reason = domain.ReasonCancelled
	case r.report.Rejected > 0:
		r.report.Status = domain.StatusPartialFailure
	default:
		r.report.Status = domain.StatusSuccess
	}
}

// fetch is the only retried stage. An empty batch counts as a failed attempt.
func (c *Coordinator) fetch(ctx context.Context, r *run, day time.Time) ([]domain.RawEntry, int, error) {
	if c.source == nil {
		return nil, 0, &domain.FetchError{Err: errors.New("no price source configured")}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.BackoffInitial
	policy.MaxInterval = c.cfg.BackoffMax
	policy.MaxElapsedTime = 0
	strategy := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.FetchRetries)), ctx)

	var (
		entries  []domain.RawEntry
		attempts int
	)
	operation := func() error {
		attempts++
		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
		defer cancel()

		got, err := c.source.Fetch(fetchCtx, day)
		if err != nil {
			return err
		}
		if len(got) == 0 {
			return errEmptyBatch
		}
		entries = got
		return nil
	}
	onRetry := func(err error, wait time.Duration) {
		r.logger.Warn("fetch attempt failed", "attempt", attempts, "retry_in", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, strategy, onRetry); err != nil {
		return nil, attempts, &domain.FetchError{Attempts: attempts, Err: err}
	}
	r.logger.Info("batch fetched", "entries", len(entries), "attempts", attempts)
	return entries, attempts, nil
}

type pending struct {
	obs   domain.Observation
	index int
}

type partitionResult struct {
	accepted   int
	corrected  int
	duplicates int
	skipped    int
	written    []domain.Observation
	anomalies  []domain.Anomaly
	err        error
}

// process normalizes every entry, then resolves and evaluates the accepted ones
// partitioned by series. Partitions run concurrently; inside a partition records are
// applied in (observed date, arrival) order so baselines do not depend on arrival order.
func (c *Coordinator) process(ctx context.Context, r *run, raw []domain.RawEntry, now time.Time) (domain.Batch, error) {
	partitions := make(map[domain.SeriesKey][]pending)
	for i, entry := range raw {
		obs, err := c.normalizer.Normalize(entry, now)
		if err != nil {
			reason := domain.RejectionOf(err)
			r.report.Rejected++
			r.report.Rejections[reason]++
			r.logger.Debug("entry rejected", "index", i, "reason", reason, "error", err)
			continue
		}
		partitions[obs.Series()] = append(partitions[obs.Series()], pending{obs: obs, index: i})
	}

	keys := make([]domain.SeriesKey, 0, len(partitions))
	for key, items := range partitions {
		sort.SliceStable(items, func(i, j int) bool {
			if !items[i].obs.ObservedDate.Equal(items[j].obs.ObservedDate) {
				return items[i].obs.ObservedDate.Before(items[j].obs.ObservedDate)
			}
			return items[i].index < items[j].index
		})
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	arena := detector.NewArena(func(ctx context.Context, key domain.SeriesKey) (domain.Baseline, error) {
		if c.store == nil {
			return domain.Baseline{}, domain.ErrNotFound
		}
		return c.store.LookupBaseline(ctx, key)
	})

	results := make([]partitionResult, len(keys))
	sem := make(chan struct{}, c.cfg.Workers)
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, items []pending) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = c.processPartition(ctx, r.report.RunID, arena, items, now)
		}(i, partitions[key])
	}
	wg.Wait()

	batch := domain.Batch{RunID: r.report.RunID}
	for _, res := range results {
		if res.err != nil {
			return domain.Batch{}, res.err
		}
		r.report.Accepted += res.accepted
		r.report.Corrected += res.corrected
		r.report.Duplicates += res.duplicates
		r.report.Skipped += res.skipped
		batch.Observations = append(batch.Observations, res.written...)
		batch.Anomalies = append(batch.Anomalies, res.anomalies...)
	}
	batch.Baselines = arena.Touched()

	if ctx.Err() != nil {
		r.report.Cancelled = true
		r.logger.Warn("run cancelled during processing", "skipped", r.report.Skipped)
	}

	r.logger.Info("batch processed",
		"accepted", r.report.Accepted,
		"corrected", r.report.Corrected,
		"duplicates", r.report.Duplicates,
		"rejected", r.report.Rejected,
		"anomalies", len(batch.Anomalies),
		"partitions", len(keys),
	)
	return batch, nil
}

func (c *Coordinator) processPartition(ctx context.Context, runID string, arena *detector.Arena, items []pending, now time.Time) partitionResult {
	var res partitionResult

	// In-flight records finish even if ctx is cancelled; storage calls keep their own deadline.
	work := context.WithoutCancel(ctx)
	snapshot := resolver.NewSnapshot(func(key domain.Key) (*domain.Observation, error) {
		if c.store == nil {
			return nil, nil
		}
		qctx, cancel := context.WithTimeout(work, c.cfg.PersistTimeout)
		defer cancel()

		obs, err := c.store.LookupObservation(qctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, &domain.PersistError{Op: "lookup observation " + key.String(), Err: err}
		}
		return &obs, nil
	})

	for i, item := range items {
		if ctx.Err() != nil {
			res.skipped = len(items) - i
			break
		}

		resolution, err := snapshot.Resolve(item.obs)
		if err != nil {
			res.err = err
			return res
		}

		switch resolution.Kind {
		case domain.ResolutionDuplicate:
			res.duplicates++
			continue
		case domain.ResolutionNew:
			res.accepted++
		case domain.ResolutionCorrection:
			res.corrected++
		}

		anomaly, err := c.detect(work, arena, item.obs, resolution)
		if err != nil {
			res.err = &domain.PersistError{Op: "lookup baseline", Err: err}
			return res
		}
		if anomaly != nil {
			anomaly.RunID = runID
			res.anomalies = append(res.anomalies, *anomaly)
		}
	}

	res.written = snapshot.Staged()
	sort.Slice(res.written, func(i, j int) bool {
		return res.written[i].Key().String() < res.written[j].Key().String()
	})
	return res
}

// detect evaluates obs against its series baseline. New observations then fold into
// the baseline; corrections are evaluated with the corrected price but leave it untouched.
func (c *Coordinator) detect(ctx context.Context, arena *detector.Arena, obs domain.Observation, res domain.Resolution) (*domain.Anomaly, error) {
	qctx, cancel := context.WithTimeout(ctx, c.cfg.PersistTimeout)
	defer cancel()

	var found *domain.Anomaly
	if res.Kind == domain.ResolutionCorrection {
		err := arena.View(qctx, obs.Series(), func(b domain.Baseline) {
			found = c.detector.Evaluate(obs, b, c.clock())
		})
		return found, err
	}

	err := arena.With(qctx, obs.Series(), func(b *domain.Baseline) error {
		found = c.detector.Evaluate(obs, *b, c.clock())
		*b = c.detector.UpdateBaseline(*b, obs)
		return nil
	})
	return found, err
}

// persist commits the batch atomically. It runs even after cancellation, bounded by its own timeout.
func (c *Coordinator) persist(ctx context.Context, batch domain.Batch) error {
	if batch.Empty() || c.store == nil {
		return nil
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PersistTimeout)
	defer cancel()

	if err := c.store.CommitBatch(pctx, batch); err != nil {
		var pe *domain.PersistError
		if errors.As(err, &pe) {
			return err
		}
		return &domain.PersistError{Op: "commit batch", Err: err}
	}
	return nil
}

// finish records and delivers the summary. Neither step can change the run's outcome.
func (c *Coordinator) finish(ctx context.Context, r *run, summary domain.RunReportSummary) {
	attrs := []any{
		"status", summary.Status,
		"fetched", summary.TotalFetched,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"corrected", summary.Corrected,
		"anomalies", summary.AnomaliesFound,
		"duration", r.report.Duration(),
	}
	if summary.Status == domain.StatusFailed {
		r.logger.Error("run failed", append(attrs, "reason", summary.Reason, "error", summary.Error)...)
	} else {
		r.logger.Info("run finished", attrs...)
	}

	if c.metrics != nil {
		c.metrics.ObserveRun(summary, r.report.Duration())
	}

	bg := context.WithoutCancel(ctx)
	if c.store != nil {
		rctx, cancel := context.WithTimeout(bg, c.cfg.PersistTimeout)
		if err := c.store.RecordRun(rctx, summary); err != nil {
			r.logger.Warn("record run failed", "error", err)
		}
		cancel()
	}

	if c.sink != nil {
		dctx, cancel := context.WithTimeout(bg, c.cfg.FetchTimeout)
		defer cancel()
		if err := c.sink.Deliver(dctx, summary); err != nil {
			r.logger.Warn("summary delivery failed", "sink", c.sink.Name(), "error", err)
		}
	}
}
