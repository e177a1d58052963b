package detector

import (
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
)

var (
	series = domain.SeriesKey{Location: "Nairobi", FuelType: domain.FuelPetrol}
	now    = time.Date(2024, time.June, 10, 6, 0, 0, 0, time.UTC)
)

func defaultConfig() config.DetectorConfig {
	return config.DetectorConfig{K: 3, MinSamples: 7, Window: 0, MajorAt: 3.5, CriticalAt: 4, PercentChange: 0}
}

func obsAt(price float64, day int) domain.Observation {
	return domain.Observation{
		Location:     series.Location,
		FuelType:     series.FuelType,
		Price:        decimal.NewFromFloat(price),
		ObservedDate: time.Date(2024, time.June, day, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateSeverityTiers(t *testing.T) {
	t.Parallel()

	d := New(defaultConfig())
	baseline := domain.NewBaseline(series, 181, 1, 10)

	cases := []struct {
		price float64
		want  domain.Severity
		flag  bool
	}{
		{182, "", false},
		{181 - 2.9, "", false},
		{184, domain.SeverityMinor, true},
		{184.5, domain.SeverityMajor, true},
		{177.5, domain.SeverityMajor, true},
		{185.5, domain.SeverityCritical, true},
		{260, domain.SeverityCritical, true},
	}

	for _, tc := range cases {
		an := d.Evaluate(obsAt(tc.price, 3), baseline, now)
		if !tc.flag {
			if an != nil {
				t.Fatalf("price %.2f: expected no anomaly, got %+v", tc.price, an)
			}
			continue
		}
		if an == nil {
			t.Fatalf("price %.2f: expected %s anomaly", tc.price, tc.want)
		}
		if an.Severity != tc.want {
			t.Fatalf("price %.2f: expected %s, got %s (z=%.2f)", tc.price, tc.want, an.Severity, an.Deviation)
		}
		if an.Kind != domain.KindZScore {
			t.Fatalf("price %.2f: expected zscore kind, got %s", tc.price, an.Kind)
		}
	}
}

func TestEvaluateDirectionAndDeviation(t *testing.T) {
	t.Parallel()

	d := New(defaultConfig())
	baseline := domain.NewBaseline(series, 181, 1, 10)

	an := d.Evaluate(obsAt(260, 3), baseline, now)
	if an == nil {
		t.Fatalf("expected anomaly")
	}
	if math.Abs(an.Deviation-79) > 1e-9 {
		t.Fatalf("expected deviation 79σ, got %f", an.Deviation)
	}
	if an.Direction != domain.DirectionSpike {
		t.Fatalf("expected spike, got %s", an.Direction)
	}
	if an.ID == "" || !an.DetectedAt.Equal(now) {
		t.Fatalf("expected id and detection time, got %+v", an)
	}

	drop := d.Evaluate(obsAt(170, 3), baseline, now)
	if drop == nil || drop.Direction != domain.DirectionDrop || drop.Deviation >= 0 {
		t.Fatalf("expected negative drop anomaly, got %+v", drop)
	}
}

func TestEvaluateColdStartGuard(t *testing.T) {
	t.Parallel()

	d := New(defaultConfig())
	baseline := domain.NewBaseline(series, 181, 1, 6)

	if an := d.Evaluate(obsAt(500, 3), baseline, now); an != nil {
		t.Fatalf("expected no determination below minSamples, got %+v", an)
	}
}

func TestEvaluatePercentChange(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.PercentChange = 5
	d := New(cfg)

	baseline := domain.NewBaseline(series, 100, 10, 10)
	baseline.LastPrice = 100

	cases := []struct {
		price float64
		want  domain.Severity
	}{
		{104, ""},
		{106, domain.SeverityMinor},
		{89, domain.SeverityMajor},
		{121, domain.SeverityCritical},
	}
	for _, tc := range cases {
		an := d.Evaluate(obsAt(tc.price, 3), baseline, now)
		if tc.want == "" {
			if an != nil {
				t.Fatalf("price %.0f: unexpected anomaly %+v", tc.price, an)
			}
			continue
		}
		if an == nil || an.Kind != domain.KindPercentChange || an.Severity != tc.want {
			t.Fatalf("price %.0f: expected %s percent anomaly, got %+v", tc.price, tc.want, an)
		}
	}
}

func TestUpdateBaselineMatchesBatchStatistics(t *testing.T) {
	t.Parallel()

	d := New(defaultConfig())
	prices := []float64{180, 182, 179.5, 181, 183.25, 180.75, 181.5}

	var b domain.Baseline
	for i, p := range prices {
		b = d.UpdateBaseline(b, obsAt(p, i+1))
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))
	var sq float64
	for _, p := range prices {
		sq += (p - mean) * (p - mean)
	}
	variance := sq / float64(len(prices))

	if b.Count != len(prices) {
		t.Fatalf("expected count %d, got %d", len(prices), b.Count)
	}
	if math.Abs(b.Mean-mean) > 1e-9 || math.Abs(b.Variance()-variance) > 1e-9 {
		t.Fatalf("expected mean %.6f var %.6f, got %.6f %.6f", mean, variance, b.Mean, b.Variance())
	}
	if b.LastPrice != 181.5 || b.LastDate != "2024-06-07" {
		t.Fatalf("expected last price tracking, got %+v", b)
	}
}

func TestUpdateBaselineWindowCapsCount(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Window = 5
	d := New(cfg)

	var b domain.Baseline
	for i := 0; i < 20; i++ {
		b = d.UpdateBaseline(b, obsAt(100, 1))
	}
	for i := 0; i < 20; i++ {
		b = d.UpdateBaseline(b, obsAt(200, 2))
	}

	if b.Count != 5 {
		t.Fatalf("expected count capped at window, got %d", b.Count)
	}
	if b.Mean < 195 {
		t.Fatalf("expected windowed mean to follow recent prices, got %.2f", b.Mean)
	}
}

func TestBaselineOrderDeterminism(t *testing.T) {
	t.Parallel()

	d := New(defaultConfig())
	var batch []domain.Observation
	for day := 1; day <= 20; day++ {
		batch = append(batch, obsAt(170+float64(day%7)*1.5, day))
	}

	apply := func(in []domain.Observation) domain.Baseline {
		sorted := append([]domain.Observation(nil), in...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ObservedDate.Before(sorted[j].ObservedDate)
		})
		var b domain.Baseline
		for _, o := range sorted {
			b = d.UpdateBaseline(b, o)
		}
		return b
	}

	want := apply(batch)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := append([]domain.Observation(nil), batch...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := apply(shuffled); got != want {
			t.Fatalf("baseline depends on arrival order: %+v vs %+v", got, want)
		}
	}
}

func TestNewAppliesFallbacks(t *testing.T) {
	t.Parallel()

	d := New(config.DetectorConfig{})
	cfg := d.Config()
	if cfg.K != 3 || cfg.MinSamples != 7 || cfg.MajorAt != 3 || cfg.CriticalAt != 3 {
		t.Fatalf("unexpected fallbacks: %+v", cfg)
	}
}

func TestEvaluateDefaultConfigJudgesBySigmaOnly(t *testing.T) {
	t.Parallel()

	d := New(config.Default().Detector)
	baseline := domain.NewBaseline(series, 100, 3, 10)
	baseline.LastPrice = 95

	// μ+1σ, 8.4% above the last price
	if an := d.Evaluate(obsAt(103, 3), baseline, now); an != nil {
		t.Fatalf("μ+1σ must not be flagged under default thresholds, got %+v", an)
	}

	an := d.Evaluate(obsAt(110, 3), baseline, now)
	if an == nil || an.Kind != domain.KindZScore || an.Severity != domain.SeverityMinor {
		t.Fatalf("expected minor z-score anomaly at μ+3.33σ, got %+v", an)
	}
}

func TestUpdateBaselineShrinksWiderStoredBaseline(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Window = 10
	d := New(cfg)

	// stored while the window was 50: variance 4
	stored := domain.NewBaseline(series, 100, 2, 50)
	b := d.UpdateBaseline(stored, obsAt(100, 3))

	if b.Count != 10 {
		t.Fatalf("expected count clamped to window, got %d", b.Count)
	}
	if math.Abs(b.Variance()-3.6) > 1e-9 {
		t.Fatalf("expected variance 3.6 after shrink and fade, got %v", b.Variance())
	}
	if b.Mean != 100 {
		t.Fatalf("mean moved: %v", b.Mean)
	}
}
