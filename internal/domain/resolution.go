package domain

// ResolutionKind classifies an incoming observation against stored data.
type ResolutionKind string

const (
	ResolutionNew        ResolutionKind = "new"
	ResolutionCorrection ResolutionKind = "correction"
	ResolutionDuplicate  ResolutionKind = "duplicate"
)

// Resolution is the outcome of deduplication. Previous is set for corrections.
type Resolution struct {
	Kind     ResolutionKind
	Previous *Observation
}

// Batch is the unit of atomic persistence for one run.
type Batch struct {
	RunID        string
	Observations []Observation
	Anomalies    []Anomaly
	Baselines    []Baseline
}

// Empty reports whether there is nothing to write.
func (b Batch) Empty() bool {
	return len(b.Observations) == 0 && len(b.Anomalies) == 0 && len(b.Baselines) == 0
}
