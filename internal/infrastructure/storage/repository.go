package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Repository persists observations, anomalies, baselines and run logs in Postgres or SQLite.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

var _ ports.Storage = (*Repository)(nil)

// New wraps an open sql.DB; the schema is not touched.
func New(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(dialect.placeholder),
	}
}

// Dialect reports the backend in use.
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// Close releases the underlying pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

var observationColumns = []string{
	"location", "fuel_type", "observed_date", "price", "currency",
	"station", "source", "source_id", "source_timestamp",
}

var anomalyColumns = []string{
	"id", "run_id", "location", "fuel_type", "observed_date", "price", "currency",
	"kind", "deviation", "severity", "direction", "baseline_mean", "baseline_std_dev",
	"note", "detected_at",
}

var baselineColumns = []string{
	"location", "fuel_type", "sample_count", "mean", "m2", "last_price", "last_date", "updated_at",
}

// LookupBaseline returns the stored statistics for a series or domain.ErrNotFound.
func (r *Repository) LookupBaseline(ctx context.Context, key domain.SeriesKey) (domain.Baseline, error) {
	query, args, err := r.sb.Select(baselineColumns...).
		From("baselines").
		Where(sq.Eq{"location": key.Location, "fuel_type": string(key.FuelType)}).
		ToSql()
	if err != nil {
		return domain.Baseline{}, fmt.Errorf("build baseline query: %w", err)
	}

	var (
		b       domain.Baseline
		fuel    string
		updated nullTime
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&b.Location, &fuel, &b.Count, &b.Mean, &b.M2, &b.LastPrice, &b.LastDate, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Baseline{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Baseline{}, fmt.Errorf("query baseline %s: %w", key, err)
	}
	b.FuelType = domain.FuelType(fuel)
	b.UpdatedAt = updated.Time
	return b, nil
}

// LookupObservation returns the stored observation for key or domain.ErrNotFound.
func (r *Repository) LookupObservation(ctx context.Context, key domain.Key) (domain.Observation, error) {
	query, args, err := r.sb.Select(observationColumns...).
		From("observations").
		Where(sq.Eq{
			"location":      key.Location,
			"fuel_type":     string(key.FuelType),
			"observed_date": key.ObservedDate,
		}).
		ToSql()
	if err != nil {
		return domain.Observation{}, fmt.Errorf("build observation query: %w", err)
	}

	obs, err := scanObservation(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Observation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Observation{}, fmt.Errorf("query observation %s: %w", key, err)
	}
	return obs, nil
}

// CommitBatch writes observations, anomalies and baselines in one transaction.
// Any failure rolls the whole batch back.
func (r *Repository) CommitBatch(ctx context.Context, batch domain.Batch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistError{Op: "begin", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, obs := range batch.Observations {
		if err := r.exec(ctx, tx, r.upsertObservation(obs, batch.RunID, now)); err != nil {
			return &domain.PersistError{Op: "upsert observation " + obs.Key().String(), Err: err}
		}
	}
	for _, an := range batch.Anomalies {
		if err := r.exec(ctx, tx, r.insertAnomaly(an)); err != nil {
			return &domain.PersistError{Op: "insert anomaly " + an.ID, Err: err}
		}
	}
	for _, b := range batch.Baselines {
		if err := r.exec(ctx, tx, r.upsertBaseline(b)); err != nil {
			return &domain.PersistError{Op: "upsert baseline " + b.Series().String(), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistError{Op: "commit", Err: err}
	}
	return nil
}

// RecordRun stores (or replaces) the summary of a run.
func (r *Repository) RecordRun(ctx context.Context, summary domain.RunReportSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	builder := r.sb.Insert("run_logs").
		Columns("run_id", "run_date", "status", "reason", "summary", "started_at").
		Values(summary.RunID, summary.RunDate, string(summary.Status), string(summary.Reason), string(payload), r.dialect.timeArg(summary.StartedAt)).
		Suffix(`ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			summary = EXCLUDED.summary`)

	if err := r.exec(ctx, r.db, builder); err != nil {
		return fmt.Errorf("record run %s: %w", summary.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent run summaries first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]domain.RunReportSummary, error) {
	query, args, err := r.sb.Select("summary").
		From("run_logs").
		OrderBy("started_at DESC", "run_id").
		Limit(clampLimit(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.RunReportSummary, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var summary domain.RunReportSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			return nil, fmt.Errorf("decode run summary: %w", err)
		}
		runs = append(runs, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}

// ListPrices returns stored observations, newest date first.
func (r *Repository) ListPrices(ctx context.Context, filter ports.PriceFilter) ([]domain.Observation, error) {
	builder := r.sb.Select(observationColumns...).From("observations")
	builder = applySeriesFilter(builder, filter.Location, filter.FuelType, filter.From, filter.To)

	query, args, err := builder.
		OrderBy("observed_date DESC", "location", "fuel_type").
		Limit(clampLimit(filter.Limit)).
		Offset(uint64(max(filter.Offset, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prices query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	prices := make([]domain.Observation, 0)
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices = append(prices, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return prices, nil
}

// ListAlerts returns anomalies, most recently detected first.
func (r *Repository) ListAlerts(ctx context.Context, filter ports.AlertFilter) ([]domain.Anomaly, error) {
	builder := r.sb.Select(anomalyColumns...).From("anomalies")
	builder = applySeriesFilter(builder, filter.Location, filter.FuelType, filter.From, filter.To)
	if filter.Severity != "" {
		builder = builder.Where(sq.Eq{"severity": string(filter.Severity)})
	}

	query, args, err := builder.
		OrderBy("detected_at DESC", "id").
		Limit(clampLimit(filter.Limit)).
		Offset(uint64(max(filter.Offset, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build alerts query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]domain.Anomaly, 0)
	for rows.Next() {
		an, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, an)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return alerts, nil
}

// InsertAlert appends a single anomaly outside of a run.
func (r *Repository) InsertAlert(ctx context.Context, anomaly domain.Anomaly) error {
	if err := r.exec(ctx, r.db, r.insertAnomaly(anomaly)); err != nil {
		return fmt.Errorf("insert alert %s: %w", anomaly.ID, err)
	}
	return nil
}

func (r *Repository) upsertObservation(obs domain.Observation, runID string, now time.Time) sq.InsertBuilder {
	return r.sb.Insert("observations").
		Columns(append(observationColumns, "run_id", "updated_at")...).
		Values(
			obs.Location, string(obs.FuelType), obs.ObservedDate.Format(domain.DateLayout), obs.Price, obs.Currency,
			obs.Station, obs.Source, obs.SourceID, r.dialect.timeArg(obs.SourceTimestamp),
			runID, r.dialect.timeArg(now),
		).
		Suffix(`ON CONFLICT (location, fuel_type, observed_date) DO UPDATE SET
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			station = EXCLUDED.station,
			source = EXCLUDED.source,
			source_id = EXCLUDED.source_id,
			source_timestamp = EXCLUDED.source_timestamp,
			run_id = EXCLUDED.run_id,
			updated_at = EXCLUDED.updated_at`)
}

func (r *Repository) insertAnomaly(an domain.Anomaly) sq.InsertBuilder {
	obs := an.Observation
	return r.sb.Insert("anomalies").
		Columns(anomalyColumns...).
		Values(
			an.ID, an.RunID, obs.Location, string(obs.FuelType), obs.ObservedDate.Format(domain.DateLayout),
			obs.Price, obs.Currency, string(an.Kind), an.Deviation, string(an.Severity), string(an.Direction),
			an.BaselineMean, an.BaselineStdDev, an.Note, r.dialect.timeArg(an.DetectedAt),
		)
}

func (r *Repository) upsertBaseline(b domain.Baseline) sq.InsertBuilder {
	return r.sb.Insert("baselines").
		Columns(baselineColumns...).
		Values(
			b.Location, string(b.FuelType), b.Count, b.Mean, b.M2, b.LastPrice, b.LastDate,
			r.dialect.timeArg(b.UpdatedAt),
		).
		Suffix(`ON CONFLICT (location, fuel_type) DO UPDATE SET
			sample_count = EXCLUDED.sample_count,
			mean = EXCLUDED.mean,
			m2 = EXCLUDED.m2,
			last_price = EXCLUDED.last_price,
			last_date = EXCLUDED.last_date,
			updated_at = EXCLUDED.updated_at`)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) exec(ctx context.Context, db execer, builder sq.Sqlizer) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	_, err = db.ExecContext(ctx, query, args...)
	return err
}

func applySeriesFilter(b sq.SelectBuilder, location string, fuel domain.FuelType, from, to time.Time) sq.SelectBuilder {
	if location != "" {
		b = b.Where(sq.Eq{"location": location})
	}
	if fuel != "" {
		b = b.Where(sq.Eq{"fuel_type": string(fuel)})
	}
	if !from.IsZero() {
		b = b.Where(sq.GtOrEq{"observed_date": from.Format(domain.DateLayout)})
	}
	if !to.IsZero() {
		b = b.Where(sq.LtOrEq{"observed_date": to.Format(domain.DateLayout)})
	}
	return b
}

func clampLimit(limit int) uint64 {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return uint64(limit)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (domain.Observation, error) {
	var (
		obs      domain.Observation
		fuel     string
		date     string
		price    decimal.Decimal
		captured nullTime
	)
	err := row.Scan(&obs.Location, &fuel, &date, &price, &obs.Currency,
		&obs.Station, &obs.Source, &obs.SourceID, &captured)
	if err != nil {
		return domain.Observation{}, err
	}

	observed, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("parse observed_date %q: %w", date, err)
	}

	obs.FuelType = domain.FuelType(fuel)
	obs.ObservedDate = observed
	obs.Price = price
	obs.SourceTimestamp = captured.Time
	return obs, nil
}

func scanAnomaly(row rowScanner) (domain.Anomaly, error) {
	var (
		an       domain.Anomaly
		fuel     string
		date     string
		kind     string
		severity string
		dir      string
		detected nullTime
	)
	err := row.Scan(&an.ID, &an.RunID, &an.Observation.Location, &fuel, &date,
		&an.Observation.Price, &an.Observation.Currency, &kind, &an.Deviation, &severity, &dir,
		&an.BaselineMean, &an.BaselineStdDev, &an.Note, &detected)
	if err != nil {
		return domain.Anomaly{}, err
	}

	observed, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return domain.Anomaly{}, fmt.Errorf("parse observed_date %q: %w", date, err)
	}

	an.Observation.FuelType = domain.FuelType(fuel)
	an.Observation.ObservedDate = observed
	an.Kind = domain.AnomalyKind(kind)
	an.Severity = domain.Severity(severity)
	an.Direction = domain.Direction(dir)
	an.DetectedAt = detected.Time
	return an, nil
}

// nullTime scans native timestamps (Postgres) and RFC3339 text (SQLite).
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (t *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *nullTime) parse(value string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("parse time %q", value)
}
