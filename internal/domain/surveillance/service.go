package surveillance

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/platform/notification"
)

// Trailing window lengths in days.
const (
	SummaryWindowDays      = 7
	SurveillanceWindowDays = 3
	TopDiseaseLimit        = 5
)

const (
	countryZoom  = 7
	hospitalZoom = 12
)

// Recommendations are the fixed public health recommendations.
var Recommendations = []string{
	"Encourage individuals to undergo regular health screenings to detect potential health issues early.",
	"Promote awareness about how diseases are transmitted and the importance of safe practices to prevent infections.",
	"Facilitate support groups and mental health resources to help individuals cope with health-related challenges.",
	"Advocate for good hygiene practices, such as frequent handwashing with soap and the use of sanitizers.",
	"Ensure communities have access to clean drinking water and advocate for proper sanitation facilities.",
	"Highlight the importance of vaccinations and encourage individuals to stay up to date with their immunizations.",
	"Educate the public on common symptoms of illnesses and the importance of seeking medical attention promptly.",
	"Organize community events to eliminate breeding sites for diseases, such as standing water and waste accumulation.",
	"Promote healthy lifestyle choices, including a balanced diet, regular exercise, and avoiding harmful substances.",
	"Develop community plans for responding to outbreaks, including communication strategies and resource allocation.",
}

// Alerter publishes rendered notifications.
type Alerter interface {
	Dispatch(ctx context.Context, templateID, key string, data map[string]string) (*notification.Notification, error)
}

// Window is an inclusive calendar date range.
type Window struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

func windowOf(f observation.Filter) Window {
	return Window{Start: f.Start.Format(observation.DateLayout), End: f.End.Format(observation.DateLayout)}
}

// Summary is the 7-day dashboard.
type Summary struct {
	Window
	TopDiseases       []Total        `json:"top_diseases"`
	AdmissionTrends   []Total        `json:"admission_trends"`
	OccasionBreakdown []Total        `json:"occasion_breakdown"`
	NewCases          int            `json:"new_cases"`
	ReviewCases       int            `json:"review_cases"`
	HospitalRisk      []HospitalRisk `json:"hospital_risk"`
}

// SurveillanceView is the 3-day per-hospital breakdown.
type SurveillanceView struct {
	Window
	Hospital      string               `json:"hospital,omitempty"`
	Hospitals     []HospitalRisk       `json:"hospitals"`
	TopDiseases   map[string]string    `json:"top_diseases"`
	DiseaseCounts *Pivot               `json:"disease_counts"`
	Center        observation.Hospital `json:"map_center"`
	Zoom          int                  `json:"zoom"`
	Markers       []Marker             `json:"markers"`
}

// RiskMap is the country-wide 3-day risk map.
type RiskMap struct {
	Window
	Center  observation.Hospital `json:"map_center"`
	Zoom    int                  `json:"zoom"`
	Markers []Marker             `json:"markers"`
}

// OutbreakReport holds the last-3-day disease frequencies and, when a range
// was requested, the trend warnings and seasonal and age breakdowns for it.
type OutbreakReport struct {
	Window
	MostFrequent     []Total   `json:"most_frequent_diseases"`
	Range            *Window   `json:"range,omitempty"`
	Warnings         []Warning `json:"warnings"`
	SeasonalPatterns *Pivot    `json:"seasonal_patterns,omitempty"`
	AgeRiskAnalysis  *Pivot    `json:"age_risk_analysis,omitempty"`
}

type Service struct {
	obs    *observation.Service
	alerts Alerter
	logger zerolog.Logger
	tracer trace.Tracer

	mu        sync.Mutex
	published map[string]struct{}
}

// NewService builds the dashboard service. alerts may be nil.
func NewService(obs *observation.Service, alerts Alerter, logger zerolog.Logger) *Service {
	s := &Service{
		obs:       obs,
		alerts:    alerts,
		logger:    logger,
		tracer:    otel.Tracer("github.com/ehr/surveillance/internal/domain/surveillance"),
		published: make(map[string]struct{}),
	}
	obs.OnChange(func(context.Context) { s.resetAlerts() })
	return s
}

// Summary builds the 7-day dashboard.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "surveillance.Summary")
	defer span.End()

	rows, f, err := s.obs.Window(ctx, SummaryWindowDays, "")
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))

	byOccasion := Aggregate(rows, DimOccasion)
	admissions := Aggregate(rows, DimOccasion, DimDate).Only(DimOccasion, observation.OccasionNewlyDetected)

	return &Summary{
		Window:            windowOf(f),
		TopDiseases:       TopN(Aggregate(rows, DimDisease).Totals(DimDisease), TopDiseaseLimit),
		AdmissionTrends:   admissions.Series(DimDate),
		OccasionBreakdown: byOccasion.Totals(DimOccasion),
		NewCases:          byOccasion.Count(observation.OccasionNewlyDetected),
		ReviewCases:       byOccasion.Count(observation.OccasionReview),
		HospitalRisk:      RiskByHospital(rows),
	}, nil
}

// Surveillance builds the 3-day per-hospital view. An empty hospital covers
// every hospital.
func (s *Service) Surveillance(ctx context.Context, hospital string) (*SurveillanceView, error) {
	ctx, span := s.tracer.Start(ctx, "surveillance.Surveillance")
	defer span.End()

	rows, f, err := s.obs.Window(ctx, SurveillanceWindowDays, hospital)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(rows)), attribute.String("hospital", hospital))

	g := Aggregate(rows, DimHospital, DimDisease)
	diseases := sortedLabels(g.Totals(DimDisease))

	risks := RiskByHospital(rows)
	view := &SurveillanceView{
		Window:        windowOf(f),
		Hospital:      hospital,
		TopDiseases:   topDiseasePerHospital(g),
		DiseaseCounts: g.PivotOn(DimDisease, DimHospital, diseases, observation.HospitalNames()),
		Center:        observation.Hospitals[0],
		Zoom:          hospitalZoom,
	}
	if hospital != "" {
		h, _ := observation.FindHospital(hospital)
		for _, r := range risks {
			if r.Hospital == hospital {
				risks = []HospitalRisk{r}
				break
			}
		}
		view.Center = h
	}
	view.Hospitals = risks
	view.Markers = Markers(risks)
	return view, nil
}

// Map builds the country-wide 3-day risk map.
func (s *Service) Map(ctx context.Context) (*RiskMap, error) {
	ctx, span := s.tracer.Start(ctx, "surveillance.Map")
	defer span.End()

	rows, f, err := s.obs.Window(ctx, SurveillanceWindowDays, "")
	if err != nil {
		return nil, err
	}
	return &RiskMap{
		Window:  windowOf(f),
		Center:  observation.MapCenter,
		Zoom:    countryZoom,
		Markers: Markers(RiskByHospital(rows)),
	}, nil
}

// Outbreaks reports the last-3-day disease frequencies. When start and end
// are both set, trend warnings and the seasonal and age-group pivots are
// computed over that range and every new warning is published as an alert.
func (s *Service) Outbreaks(ctx context.Context, start, end time.Time) (*OutbreakReport, error) {
	ctx, span := s.tracer.Start(ctx, "surveillance.Outbreaks")
	defer span.End()

	if start.IsZero() != end.IsZero() {
		return nil, &observation.ValidationError{Field: "start_date", Message: "start_date and end_date must be given together"}
	}

	recent, f, err := s.obs.Window(ctx, SurveillanceWindowDays, "")
	if err != nil {
		return nil, err
	}
	report := &OutbreakReport{
		Window:       windowOf(f),
		MostFrequent: Aggregate(recent, DimDisease).Totals(DimDisease),
		Warnings:     []Warning{},
	}
	if start.IsZero() {
		return report, nil
	}

	rf := observation.Filter{Start: observation.Day(start), End: observation.Day(end)}
	rows, err := s.obs.Query(ctx, rf)
	if err != nil {
		return nil, err
	}
	rng := windowOf(rf)
	report.Range = &rng
	report.Warnings = DetectTrends(rows)
	report.SeasonalPatterns = SeasonalPatterns(rows)
	report.AgeRiskAnalysis = AgeRiskAnalysis(rows)
	span.SetAttributes(attribute.Int("rows", len(rows)), attribute.Int("warnings", len(report.Warnings)))

	s.publishWarnings(ctx, report.Warnings)
	return report, nil
}

// SeasonalPatterns is the month by disease pivot of rows.
func SeasonalPatterns(rows []*observation.Observation) *Pivot {
	return Aggregate(rows, DimMonth, DimDisease).Pivot(DimMonth, DimDisease)
}

// AgeRiskAnalysis is the age group by disease pivot of rows. Every age group
// is listed, in ascending order.
func AgeRiskAnalysis(rows []*observation.Observation) *Pivot {
	g := Aggregate(rows, DimAgeGroup, DimDisease)
	return g.PivotOn(DimAgeGroup, DimDisease, AgeGroupLabels, sortedLabels(g.Totals(DimDisease)))
}

// Predictions runs the toy predictor over every stored row.
func (s *Service) Predictions(ctx context.Context) (*PredictionResult, error) {
	ctx, span := s.tracer.Start(ctx, "surveillance.Predictions")
	defer span.End()

	rows, err := s.obs.All(ctx)
	if err != nil {
		return nil, err
	}
	res := Predict(rows)
	span.SetAttributes(attribute.Int("rows", len(rows)), attribute.Bool("insufficient_data", res.InsufficientData))
	return &res, nil
}

func (s *Service) publishWarnings(ctx context.Context, warnings []Warning) {
	if s.alerts == nil {
		return
	}
	for _, w := range warnings {
		key := w.Disease + "|" + w.Day + "|" + strconv.Itoa(w.Current)
		s.mu.Lock()
		_, seen := s.published[key]
		s.published[key] = struct{}{}
		s.mu.Unlock()
		if seen {
			continue
		}

		_, err := s.alerts.Dispatch(ctx, notification.TemplateOutbreakWarning, w.Disease, map[string]string{
			"disease":  w.Disease,
			"date":     w.Day,
			"message":  w.Message,
			"previous": strconv.Itoa(w.Previous),
			"current":  strconv.Itoa(w.Current),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("disease", w.Disease).Str("date", w.Day).Msg("outbreak alert publish failed")
		}
	}
}

func (s *Service) resetAlerts() {
	s.mu.Lock()
	s.published = make(map[string]struct{})
	s.mu.Unlock()
}

// topDiseasePerHospital picks each hospital's most frequent disease. Ties go
// to the alphabetically first disease.
func topDiseasePerHospital(g *Groups) map[string]string {
	top := make(map[string]string)
	best := make(map[string]int)
	for _, row := range g.Rows() {
		h := row.Key.Get(DimHospital)
		if _, ok := top[h]; ok && best[h] >= row.Count {
			continue
		}
		top[h] = row.Key.Get(DimDisease)
		best[h] = row.Count
	}
	return top
}

// sortedLabels returns the labels of totals in ascending order.
func sortedLabels(totals []Total) []string {
	out := lo.Map(totals, func(t Total, _ int) string { return t.Label })
	sort.Strings(out)
	return out
}
