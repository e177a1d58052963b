package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Detector.K != 3 || cfg.Detector.MinSamples != 7 || cfg.Detector.MajorAt != 3.5 || cfg.Detector.CriticalAt != 4 {
		t.Fatalf("unexpected detector defaults %+v", cfg.Detector)
	}
	if cfg.Detector.PercentChange != 0 {
		t.Fatalf("percent rule must be opt-in, got %v", cfg.Detector.PercentChange)
	}
	if cfg.Pipeline.FetchRetries != 3 || cfg.Pipeline.TopN != 5 || cfg.Pipeline.PersistTimeout != 30*time.Second {
		t.Fatalf("unexpected pipeline defaults %+v", cfg.Pipeline)
	}
	if cfg.Database.Driver != "sqlite" || len(cfg.Sources) != 1 {
		t.Fatalf("unexpected database/sources defaults %+v %+v", cfg.Database, cfg.Sources)
	}
	if got := cfg.Scheduler.Location().String(); got != "Africa/Nairobi" {
		t.Fatalf("timezone = %s", got)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://localhost/fuel
scheduler:
  cronExpression: "30 7 * * 1-5"
  timezone: UTC
sources:
  - name: eia
    scanner: json
    url: https://api.example.org/v2/prices
    options:
      records_path: response.data
detector:
  k: 2.5
  majorAt: 3
  criticalAt: 5
  percentChange: 0
pipeline:
  fetchRetries: 1
  backoffInitial: 500ms
`)

	t.Setenv("DATABASE_DSN", "postgres://db.internal/fuel")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SOURCE_API_KEY", "secret")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://db.internal/fuel" {
		t.Fatalf("unexpected database %+v", cfg.Database)
	}
	if cfg.Scheduler.CronExpression != "30 7 * * 1-5" || cfg.Scheduler.Location() != time.UTC {
		t.Fatalf("unexpected scheduler %+v", cfg.Scheduler)
	}
	if cfg.Detector.K != 2.5 || cfg.Detector.MinSamples != 7 || cfg.Detector.PercentChange != 0 {
		t.Fatalf("unexpected detector %+v", cfg.Detector)
	}
	if cfg.Pipeline.FetchRetries != 1 || cfg.Pipeline.BackoffInitial != 500*time.Millisecond || cfg.Pipeline.Workers != 4 {
		t.Fatalf("unexpected pipeline %+v", cfg.Pipeline)
	}
	if len(cfg.Notifications.Kafka.Brokers) != 2 || cfg.Notifications.Kafka.Topic != "fuel-price-runs" {
		t.Fatalf("unexpected kafka %+v", cfg.Notifications.Kafka)
	}
	if cfg.Sources[0].Options["api_key"] != "secret" || cfg.Sources[0].Options["records_path"] != "response.data" {
		t.Fatalf("unexpected source options %+v", cfg.Sources[0].Options)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level = %s", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"tiers out of order": `
detector:
  k: 3
  majorAt: 2
  criticalAt: 4
`,
		"unknown driver": `
database:
  driver: mysql
`,
		"source without url": `
sources:
  - name: broken
    scanner: json
`,
		"bad recipient": `
notifications:
  email:
    host: smtp.local
    to: ["not-an-address"]
`,
	}

	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
