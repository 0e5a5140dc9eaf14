package surveillance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/platform/reporting"
)

// RegisterReports binds every predefined report to its builder.
func (s *Service) RegisterReports(c *reporting.Catalog) error {
	builders := map[string]reporting.Builder{
		"frequent-diseases": s.frequentDiseasesReport,
		"age-risk-analysis": s.ageRiskReport,
		"seasonal-patterns": s.seasonalReport,
		"disease-report":    s.diseaseReport,
		"predictions":       s.predictionsReport,
	}
	for _, def := range reporting.PredefinedReports {
		b, ok := builders[def.ID]
		if !ok {
			return fmt.Errorf("no builder for report %s", def.ID)
		}
		if err := c.Register(def.ID, b); err != nil {
			return err
		}
	}
	return nil
}

// asParamError turns request validation failures into report parameter
// errors.
func asParamError(err error) error {
	var ve *observation.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %s", reporting.ErrInvalidParameter, ve.Error())
	}
	return err
}

func (s *Service) frequentDiseasesReport(ctx context.Context, _ map[string]string) (*reporting.Built, error) {
	rows, _, err := s.obs.Window(ctx, SurveillanceWindowDays, "")
	if err != nil {
		return nil, err
	}
	t := reporting.Table{Columns: []string{"Disease Name", "Case Count"}, Rows: [][]any{}}
	for _, tot := range Aggregate(rows, DimDisease).Totals(DimDisease) {
		t.Rows = append(t.Rows, []any{tot.Label, tot.Count})
	}
	return &reporting.Built{Table: t}, nil
}

func (s *Service) ageRiskReport(ctx context.Context, _ map[string]string) (*reporting.Built, error) {
	rows, err := s.obs.All(ctx)
	if err != nil {
		return nil, err
	}
	return &reporting.Built{Table: AgeRiskAnalysis(rows).Table()}, nil
}

func (s *Service) seasonalReport(ctx context.Context, params map[string]string) (*reporting.Built, error) {
	start, err := dateParam(params, "start_date")
	if err != nil {
		return nil, err
	}
	end, err := dateParam(params, "end_date")
	if err != nil {
		return nil, err
	}
	rows, err := s.obs.Query(ctx, observation.Filter{Start: start, End: end})
	if err != nil {
		return nil, asParamError(err)
	}
	return &reporting.Built{Table: SeasonalPatterns(rows).Table()}, nil
}

func dateParam(params map[string]string, name string) (time.Time, error) {
	v, ok := params[name]
	if !ok {
		return time.Time{}, nil
	}
	d, err := observation.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a date in YYYY-MM-DD format", reporting.ErrInvalidParameter, name)
	}
	return d, nil
}

// diseaseReport lists observations, all of them or those of one occasion.
func (s *Service) diseaseReport(ctx context.Context, params map[string]string) (*reporting.Built, error) {
	occasion := strings.TrimSpace(params["occasion"])
	var f observation.Filter
	base := ""
	switch {
	case occasion == "" || strings.EqualFold(occasion, "all"):
	case observation.IsOccasion(occasion):
		f.Occasion = occasion
		base = "disease_report_" + strings.ReplaceAll(occasion, " ", "_")
	default:
		return nil, fmt.Errorf("%w: occasion must be all or one of %q", reporting.ErrInvalidParameter, observation.Occasions)
	}

	rows, err := s.obs.Query(ctx, f)
	if err != nil {
		return nil, asParamError(err)
	}
	t := reporting.Table{
		Columns: []string{"ID", "Patient Age", "Disease Name", "Occasion", "Date", "Hospital Name"},
		Rows:    make([][]any, 0, len(rows)),
	}
	for _, o := range rows {
		t.Rows = append(t.Rows, []any{o.ID.String(), o.PatientAge, o.DiseaseName, o.Occasion, o.Date, o.HospitalName})
	}
	return &reporting.Built{Table: t, BaseName: base}, nil
}

func (s *Service) predictionsReport(ctx context.Context, _ map[string]string) (*reporting.Built, error) {
	res, err := s.Predictions(ctx)
	if err != nil {
		return nil, err
	}
	t := reporting.Table{Columns: []string{"Disease Name", "Count", "Risk Status"}, Rows: [][]any{}}
	for _, p := range res.Predictions {
		t.Rows = append(t.Rows, []any{p.Disease, p.PredictedCount, string(p.RiskLevel)})
	}
	return &reporting.Built{Table: t}, nil
}
