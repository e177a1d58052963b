// Package detector maintains per-series baselines and flags anomalous observations.
package detector

import (
	"math"
	"time"

	"github.com/google/uuid"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
)

// Detector evaluates observations against online baselines. It holds no mutable state.
type Detector struct {
	cfg config.DetectorConfig
}

// New returns a detector for the given thresholds. Zero values fall back to k=3, minSamples=7.
func New(cfg config.DetectorConfig) *Detector {
	if cfg.K <= 0 {
		cfg.K = 3
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 7
	}
	if cfg.MajorAt < cfg.K {
		cfg.MajorAt = cfg.K
	}
	if cfg.CriticalAt < cfg.MajorAt {
		cfg.CriticalAt = cfg.MajorAt
	}
	return &Detector{cfg: cfg}
}

// Config returns the effective thresholds.
func (d *Detector) Config() config.DetectorConfig {
	return d.cfg
}

// Evaluate returns an anomaly when obs deviates from baseline by at least k standard
// deviations, or by the configured percent versus the last accepted price.
// Below MinSamples no determination is made.
func (d *Detector) Evaluate(obs domain.Observation, baseline domain.Baseline, now time.Time) *domain.Anomaly {
	if baseline.Count < d.cfg.MinSamples {
		return nil
	}

	price := obs.PriceFloat()
	sd := baseline.StdDev()

	if sd > 0 {
		z := (price - baseline.Mean) / sd
		if math.Abs(z) >= d.cfg.K {
			return d.newAnomaly(obs, baseline, domain.KindZScore, z, d.sigmaSeverity(math.Abs(z)), now)
		}
	}

	if d.cfg.PercentChange > 0 && baseline.LastPrice > 0 {
		pct := (price - baseline.LastPrice) / baseline.LastPrice * 100
		if math.Abs(pct) >= d.cfg.PercentChange {
			return d.newAnomaly(obs, baseline, domain.KindPercentChange, pct, d.percentSeverity(math.Abs(pct)), now)
		}
	}

	return nil
}

// UpdateBaseline folds obs into b in O(1) using Welford's algorithm. Once Count reaches
// Window the oldest weight is faded out so the statistics track a trailing window.
func (d *Detector) UpdateBaseline(b domain.Baseline, obs domain.Observation) domain.Baseline {
	x := obs.PriceFloat()

	// A baseline stored under a wider window is shrunk to this one first.
	if d.cfg.Window > 0 && b.Count > d.cfg.Window {
		b.M2 *= float64(d.cfg.Window) / float64(b.Count)
		b.Count = d.cfg.Window
	}

	n := b.Count + 1
	if d.cfg.Window > 0 && n > d.cfg.Window {
		n = d.cfg.Window
		b.M2 *= float64(n-1) / float64(n)
	}

	delta := x - b.Mean
	b.Mean += delta / float64(n)
	b.M2 += delta * (x - b.Mean)
	if b.M2 < 0 {
		b.M2 = 0
	}

	b.Count = n
	b.Location = obs.Location
	b.FuelType = obs.FuelType
	b.LastPrice = x
	b.LastDate = obs.ObservedDate.Format(domain.DateLayout)
	b.UpdatedAt = obs.SourceTimestamp
	return b
}

func (d *Detector) sigmaSeverity(absZ float64) domain.Severity {
	switch {
	case absZ >= d.cfg.CriticalAt:
		return domain.SeverityCritical
	case absZ >= d.cfg.MajorAt:
		return domain.SeverityMajor
	default:
		return domain.SeverityMinor
	}
}

func (d *Detector) percentSeverity(absPct float64) domain.Severity {
	switch {
	case absPct >= 4*d.cfg.PercentChange:
		return domain.SeverityCritical
	case absPct >= 2*d.cfg.PercentChange:
		return domain.SeverityMajor
	default:
		return domain.SeverityMinor
	}
}

func (d *Detector) newAnomaly(obs domain.Observation, b domain.Baseline, kind domain.AnomalyKind, deviation float64, sev domain.Severity, now time.Time) *domain.Anomaly {
	return &domain.Anomaly{
		ID:             uuid.NewString(),
		Observation:    obs,
		Kind:           kind,
		Deviation:      deviation,
		Severity:       sev,
		Direction:      domain.DirectionOf(deviation),
		BaselineMean:   b.Mean,
		BaselineStdDev: b.StdDev(),
		DetectedAt:     now.UTC(),
	}
}
