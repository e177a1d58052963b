// Package notify turns run reports into flat summaries and renders them for delivery channels.
package notify

import (
	"sort"

	"github.com/shopspring/decimal"

	"FuelPriceMonitor/internal/domain"
)

// DefaultTopN is the number of highest/lowest observations kept in a summary.
const DefaultTopN = 5

// Summarize flattens a report. A failed run keeps its identity, status and reason
// but reports empty counts, except that a no_valid_records failure keeps its
// fetched and rejection counts so the operator can see why.
func Summarize(report domain.RunReport, topN int) domain.RunReportSummary {
	if topN <= 0 {
		topN = DefaultTopN
	}

	summary := domain.RunReportSummary{
		RunID:               report.RunID,
		RunDate:             report.RunDate.Format(domain.DateLayout),
		Status:              report.Status,
		Reason:              report.Reason,
		Error:               report.Error,
		RejectedByReason:    map[domain.RejectionReason]int{},
		AnomaliesBySeverity: map[domain.Severity]int{},
		Highest:             []domain.PricePoint{},
		Lowest:              []domain.PricePoint{},
		StartedAt:           report.StartedAt,
		FinishedAt:          report.FinishedAt,
		DurationMillis:      report.Duration().Milliseconds(),
	}
	for _, sev := range domain.Severities {
		summary.AnomaliesBySeverity[sev] = 0
	}

	if report.Status == domain.StatusFailed {
		if report.Reason == domain.ReasonNoValidRecords {
			summary.TotalFetched = report.TotalFetched
			summary.Rejected = report.Rejected
			for reason, n := range report.Rejections {
				summary.RejectedByReason[reason] = n
			}
		}
		return summary
	}

	summary.TotalFetched = report.TotalFetched
	summary.Accepted = report.Accepted
	summary.Rejected = report.Rejected
	summary.Corrected = report.Corrected
	for reason, n := range report.Rejections {
		summary.RejectedByReason[reason] = n
	}

	summary.AnomaliesFound = len(report.Anomalies)
	for _, an := range report.Anomalies {
		summary.AnomaliesBySeverity[an.Severity]++
	}

	if len(report.Written) == 0 {
		return summary
	}

	ranked := make([]domain.Observation, len(report.Written))
	copy(ranked, report.Written)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].Price.Cmp(ranked[j].Price); c != 0 {
			return c > 0
		}
		return ranked[i].Key().String() < ranked[j].Key().String()
	})

	n := topN
	if n > len(ranked) {
		n = len(ranked)
	}
	for i := 0; i < n; i++ {
		summary.Highest = append(summary.Highest, pointOf(ranked[i]))
		summary.Lowest = append(summary.Lowest, pointOf(ranked[len(ranked)-1-i]))
	}

	total := decimal.Zero
	for _, obs := range report.Written {
		total = total.Add(obs.Price)
	}
	summary.AveragePrice = total.Div(decimal.NewFromInt(int64(len(report.Written)))).Round(2).InexactFloat64()

	return summary
}

func pointOf(obs domain.Observation) domain.PricePoint {
	return domain.PricePoint{
		Location:     obs.Location,
		FuelType:     obs.FuelType,
		Price:        obs.PriceFloat(),
		Currency:     obs.Currency,
		ObservedDate: obs.ObservedDate.Format(domain.DateLayout),
	}
}
