package domain

import "time"

// Severity tiers of a flagged deviation.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Severities lists tiers from least to most severe.
var Severities = []Severity{SeverityMinor, SeverityMajor, SeverityCritical}

// Valid reports whether s is a known tier.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// AnomalyKind tells which rule produced an anomaly.
type AnomalyKind string

const (
	KindZScore        AnomalyKind = "zscore"
	KindPercentChange AnomalyKind = "percent_change"
	KindManual        AnomalyKind = "manual"
)

// Direction of the price move.
type Direction string

const (
	DirectionSpike Direction = "spike"
	DirectionDrop  Direction = "drop"
)

// DirectionOf maps a signed deviation to spike/drop.
func DirectionOf(deviation float64) Direction {
	if deviation < 0 {
		return DirectionDrop
	}
	return DirectionSpike
}

// Anomaly is an append-only record of a flagged observation.
// Deviation is signed: σ units for KindZScore, percent for KindPercentChange.
type Anomaly struct {
	ID             string      `json:"id"`
	RunID          string      `json:"run_id,omitempty"`
	Observation    Observation `json:"observation"`
	Kind           AnomalyKind `json:"kind"`
	Deviation      float64     `json:"deviation"`
	Severity       Severity    `json:"severity"`
	Direction      Direction   `json:"direction"`
	BaselineMean   float64     `json:"baseline_mean"`
	BaselineStdDev float64     `json:"baseline_std_dev"`
	Note           string      `json:"note,omitempty"`
	DetectedAt     time.Time   `json:"detected_at"`
}
