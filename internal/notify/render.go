package notify

import (
	"fmt"
	"sort"
	"strings"

	"FuelPriceMonitor/internal/domain"
)

// RenderText formats a summary as a plain-text report (email body).
func RenderText(s domain.RunReportSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Fuel price run %s (%s)\n", s.RunDate, s.RunID)
	fmt.Fprintf(&b, "Status: %s", s.Status)
	if s.Reason != domain.ReasonNone {
		fmt.Fprintf(&b, " (%s)", s.Reason)
	}
	b.WriteString("\n")
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}
	fmt.Fprintf(&b, "Duration: %dms\n\n", s.DurationMillis)

	fmt.Fprintf(&b, "Fetched: %d\nAccepted: %d\nCorrected: %d\nRejected: %d\n", s.TotalFetched, s.Accepted, s.Corrected, s.Rejected)
	for _, reason := range sortedReasons(s.RejectedByReason) {
		fmt.Fprintf(&b, "  %s: %d\n", reason, s.RejectedByReason[reason])
	}

	fmt.Fprintf(&b, "Anomalies: %d\n", s.AnomaliesFound)
	for _, sev := range domain.Severities {
		if n := s.AnomaliesBySeverity[sev]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", sev, n)
		}
	}

	if len(s.Highest) > 0 {
		fmt.Fprintf(&b, "\nAverage price: %.2f\n", s.AveragePrice)
		b.WriteString("\nHighest prices:\n")
		writePoints(&b, s.Highest, "  ")
		b.WriteString("\nLowest prices:\n")
		writePoints(&b, s.Lowest, "  ")
	}

	return b.String()
}

// RenderMarkdown formats a summary for Telegram's legacy Markdown parse mode.
func RenderMarkdown(s domain.RunReportSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Fuel prices %s*\n", escapeMarkdown(s.RunDate))
	fmt.Fprintf(&b, "Status: *%s*", escapeMarkdown(string(s.Status)))
	if s.Reason != domain.ReasonNone {
		fmt.Fprintf(&b, " (%s)", escapeMarkdown(string(s.Reason)))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Fetched %d, accepted %d, corrected %d, rejected %d\n", s.TotalFetched, s.Accepted, s.Corrected, s.Rejected)

	if s.AnomaliesFound > 0 {
		parts := make([]string, 0, len(domain.Severities))
		for i := len(domain.Severities) - 1; i >= 0; i-- {
			sev := domain.Severities[i]
			if n := s.AnomaliesBySeverity[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", sev, n))
			}
		}
		fmt.Fprintf(&b, "Anomalies: *%d* (%s)\n", s.AnomaliesFound, strings.Join(parts, ", "))
	} else {
		b.WriteString("No anomalies\n")
	}

	if len(s.Highest) > 0 {
		fmt.Fprintf(&b, "Average: %.2f\n\n*Highest*\n", s.AveragePrice)
		writePoints(&b, escapePoints(s.Highest), "- ")
		b.WriteString("\n*Lowest*\n")
		writePoints(&b, escapePoints(s.Lowest), "- ")
	}

	return b.String()
}

func writePoints(b *strings.Builder, points []domain.PricePoint, prefix string) {
	for _, p := range points {
		fmt.Fprintf(b, "%s%s %s: %.2f", prefix, p.Location, p.FuelType, p.Price)
		if p.Currency != "" {
			fmt.Fprintf(b, " %s", p.Currency)
		}
		fmt.Fprintf(b, " (%s)\n", p.ObservedDate)
	}
}

func sortedReasons(m map[domain.RejectionReason]int) []domain.RejectionReason {
	out := make([]domain.RejectionReason, 0, len(m))
	for reason, n := range m {
		if n > 0 {
			out = append(out, reason)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(value string) string {
	return markdownEscaper.Replace(value)
}

func escapePoints(points []domain.PricePoint) []domain.PricePoint {
	out := make([]domain.PricePoint, len(points))
	for i, p := range points {
		p.Location = escapeMarkdown(p.Location)
		p.FuelType = domain.FuelType(escapeMarkdown(string(p.FuelType)))
		out[i] = p
	}
	return out
}
