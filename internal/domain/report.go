package domain

import "time"

// RunStatus is the overall outcome of a pipeline execution.
type RunStatus string

const (
	StatusSuccess        RunStatus = "success"
	StatusPartialFailure RunStatus = "partial_failure"
	StatusFailed         RunStatus = "failed"
)

// FailureReason explains a Failed status (or a cancelled PartialFailure).
type FailureReason string

const (
	ReasonNone           FailureReason = ""
	ReasonFetchFailed    FailureReason = "fetch_failed"
	ReasonPersistFailed  FailureReason = "persist_failed"
	ReasonNoValidRecords FailureReason = "no_valid_records"
	ReasonCancelled      FailureReason = "cancelled"
)

// RunReport is the full outcome of one run. It is built by the coordinator
// and never modified after the run completes.
type RunReport struct {
	RunID         string
	RunDate       time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
	Status        RunStatus
	Reason        FailureReason
	Error         string
	FetchAttempts int

	TotalFetched int
	Accepted     int
	Rejected     int
	Corrected    int
	Duplicates   int
	Skipped      int
	Cancelled    bool

	Rejections map[RejectionReason]int
	Anomalies  []Anomaly
	Written    []Observation
}

// Duration of the run.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PricePoint is a flattened observation for summaries.
type PricePoint struct {
	Location     string   `json:"location"`
	FuelType     FuelType `json:"fuel_type"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency,omitempty"`
	ObservedDate string   `json:"observed_date"`
}

// RunReportSummary is the flat, self-contained artifact handed to sinks and the API.
type RunReportSummary struct {
	RunID               string                  `json:"run_id"`
	RunDate             string                  `json:"run_date"`
	Status              RunStatus               `json:"status"`
	Reason              FailureReason           `json:"reason,omitempty"`
	Error               string                  `json:"error,omitempty"`
	TotalFetched        int                     `json:"total_fetched"`
	Accepted            int                     `json:"accepted"`
	Rejected            int                     `json:"rejected"`
	RejectedByReason    map[RejectionReason]int `json:"rejected_by_reason"`
	Corrected           int                     `json:"corrected"`
	AnomaliesFound      int                     `json:"anomalies_found"`
	AnomaliesBySeverity map[Severity]int        `json:"anomalies_by_severity"`
	Highest             []PricePoint            `json:"highest"`
	Lowest              []PricePoint            `json:"lowest"`
	AveragePrice        float64                 `json:"average_price"`
	StartedAt           time.Time               `json:"started_at"`
	FinishedAt          time.Time               `json:"finished_at"`
	DurationMillis      int64                   `json:"duration_ms"`
}
