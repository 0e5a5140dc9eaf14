package surveillance

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/platform/reporting"
)

func toPoints(totals []Total) []reporting.Point {
	return lo.Map(totals, func(t Total, _ int) reporting.Point {
		return reporting.Point{Label: t.Label, Value: float64(t.Count)}
	})
}

// AdmissionsChart plots newly detected cases per day over the summary window.
func (s *Service) AdmissionsChart(ctx context.Context) ([]byte, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return reporting.LineChart(toPoints(summary.AdmissionTrends), reporting.ChartOptions{
		Title: fmt.Sprintf("%s admissions %s to %s", observation.OccasionNewlyDetected, summary.Start, summary.End),
	})
}

// TopDiseasesChart plots the most frequent diseases over the summary window.
func (s *Service) TopDiseasesChart(ctx context.Context) ([]byte, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return reporting.BarChart(toPoints(summary.TopDiseases), reporting.ChartOptions{
		Title: fmt.Sprintf("Most frequent diseases %s to %s", summary.Start, summary.End),
		Color: "#d62728",
	})
}
