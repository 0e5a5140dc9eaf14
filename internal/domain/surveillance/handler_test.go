package surveillance

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/platform/reporting"
)

func newTestHandler(rows ...*observation.Observation) (*Handler, *echo.Echo, *fakeAlerter) {
	svc, _, alerts := newTestService(rows...)
	return NewHandler(svc), echo.New(), alerts
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestGetSummary(t *testing.T) {
	h, e, _ := newTestHandler(dashboardRows()...)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/summary", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var result map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result["start_date"] != "2024-03-08" {
		t.Errorf("expected start_date 2024-03-08, got %v", result["start_date"])
	}
	if result["new_cases"] != float64(11) {
		t.Errorf("expected 11 new cases, got %v", result["new_cases"])
	}
	top, ok := result["top_diseases"].([]interface{})
	if !ok || len(top) != 3 {
		t.Fatalf("expected 3 top diseases, got %v", result["top_diseases"])
	}
}

func TestGetSurveillance_HospitalFilter(t *testing.T) {
	h, e, _ := newTestHandler(dashboardRows()...)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/surveillance?hospital=Mpilo+Central+Hospital", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetSurveillance(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result struct {
		Hospital string         `json:"hospital"`
		Markers  []Marker       `json:"markers"`
		Counts   map[string]any `json:"disease_counts"`
	}
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Hospital != mpilo || len(result.Markers) != 1 {
		t.Errorf("unexpected response %+v", result)
	}
	if _, ok := result.Counts["columns"]; !ok {
		t.Error("expected pivot columns in response")
	}
}

func TestGetSurveillance_UnknownHospital(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/surveillance?hospital=Nowhere", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.GetSurveillance(c)
	if statusOf(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestGetMap(t *testing.T) {
	h, e, _ := newTestHandler(dashboardRows()...)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/surveillance/map", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetMap(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result RiskMap
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Zoom != 7 || len(result.Markers) != len(observation.Hospitals) {
		t.Errorf("unexpected map zoom=%d markers=%d", result.Zoom, len(result.Markers))
	}
}

func TestGetOutbreaks(t *testing.T) {
	h, e, alerts := newTestHandler(outbreakRows()...)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbreaks?start_date=2024-03-01&end_date=2024-03-15", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetOutbreaks(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result struct {
		Warnings []Warning `json:"warnings"`
		Range    *Window   `json:"range"`
	}
	json.Unmarshal(rec.Body.Bytes(), &result)
	if len(result.Warnings) != 1 || result.Range == nil {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
	if len(alerts.keys) != 1 {
		t.Errorf("expected one alert, got %d", len(alerts.keys))
	}
}

func TestGetOutbreaks_BadRequests(t *testing.T) {
	h, e, _ := newTestHandler(outbreakRows()...)
	for _, q := range []string{
		"?start_date=2024-03-01",
		"?end_date=2024-03-15",
		"?start_date=01-03-2024&end_date=2024-03-15",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/outbreaks"+q, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h.GetOutbreaks(c); statusOf(err) != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}
}

func TestGetPredictions(t *testing.T) {
	h, e, _ := newTestHandler(separableRows()...)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetPredictions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result PredictionResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.InsufficientData || result.EvalSize != 5 || result.Disclaimer == "" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestGetRecommendations(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/recommendations", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetRecommendations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	recs, ok := result["recommendations"].([]interface{})
	if !ok || len(recs) != 10 {
		t.Errorf("expected 10 recommendations, got %v", result["recommendations"])
	}
}

func TestGetCharts(t *testing.T) {
	h, e, _ := newTestHandler(dashboardRows()...)
	for path, fn := range map[string]echo.HandlerFunc{
		"/api/v1/charts/admissions.png":   h.GetAdmissionsChart,
		"/api/v1/charts/top-diseases.png": h.GetTopDiseasesChart,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := fn(c); err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
		if ct := rec.Header().Get(echo.HeaderContentType); ct != reporting.ContentTypePNG {
			t.Errorf("%s: expected %s, got %s", path, reporting.ContentTypePNG, ct)
		}
	}
}

func TestRegisterRoutes(t *testing.T) {
	h, e, _ := newTestHandler(dashboardRows()...)
	h.RegisterRoutes(e.Group("/api/v1"))

	for _, path := range []string{
		"/api/v1/dashboard/summary",
		"/api/v1/surveillance",
		"/api/v1/surveillance/map",
		"/api/v1/outbreaks",
		"/api/v1/predictions",
		"/api/v1/recommendations",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
