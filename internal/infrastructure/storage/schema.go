package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"FuelPriceMonitor/internal/config"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	Name        string
	driver      string
	placeholder sq.PlaceholderFormat
	types       *strings.Replacer
	// SQLite keeps timestamps as RFC3339 text; Postgres uses native timestamptz.
	textTime bool
}

var (
	Postgres = Dialect{
		Name:        "postgres",
		driver:      "postgres",
		placeholder: sq.Dollar,
		types: strings.NewReplacer(
			"{{price}}", "NUMERIC(12,3)",
			"{{float}}", "DOUBLE PRECISION",
			"{{time}}", "TIMESTAMPTZ",
		),
	}
	SQLite = Dialect{
		Name:        "sqlite",
		driver:      "sqlite",
		placeholder: sq.Question,
		types: strings.NewReplacer(
			"{{price}}", "TEXT",
			"{{float}}", "REAL",
			"{{time}}", "TEXT",
		),
		textTime: true,
	}
)

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// textTimeLayout is fixed-width so text timestamps sort chronologically.
const textTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (d Dialect) timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	if d.textTime {
		return t.UTC().Format(textTimeLayout)
	}
	return t.UTC()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		location TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		observed_date TEXT NOT NULL,
		price {{price}} NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		station TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT '',
		source_timestamp {{time}},
		run_id TEXT NOT NULL DEFAULT '',
		updated_at {{time}},
		PRIMARY KEY (location, fuel_type, observed_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_date ON observations(observed_date)`,

	`CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		observed_date TEXT NOT NULL,
		price {{price}} NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		deviation {{float}} NOT NULL,
		severity TEXT NOT NULL,
		direction TEXT NOT NULL,
		baseline_mean {{float}} NOT NULL DEFAULT 0,
		baseline_std_dev {{float}} NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT '',
		detected_at {{time}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anomalies_severity ON anomalies(severity)`,
	`CREATE INDEX IF NOT EXISTS idx_anomalies_series ON anomalies(location, fuel_type, observed_date)`,

	`CREATE TABLE IF NOT EXISTS baselines (
		location TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		sample_count INTEGER NOT NULL,
		mean {{float}} NOT NULL,
		m2 {{float}} NOT NULL,
		last_price {{float}} NOT NULL DEFAULT 0,
		last_date TEXT NOT NULL DEFAULT '',
		updated_at {{time}},
		PRIMARY KEY (location, fuel_type)
	)`,

	`CREATE TABLE IF NOT EXISTS run_logs (
		run_id TEXT PRIMARY KEY,
		run_date TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL,
		started_at {{time}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_run_logs_started ON run_logs(started_at)`,
}

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Repository, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if dialect.textTime {
		// One connection keeps ":memory:" databases alive and serializes writers.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("exec %s: %w", pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	repo := New(db, dialect)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate creates missing tables and indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		stmt = r.dialect.types.Replace(stmt)
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i > 0 {
		return stmt[:i]
	}
	return stmt
}
