package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/surveillance/internal/platform/blobstore"
	"github.com/ehr/surveillance/internal/platform/notification"
)

func TestPredefinedReports(t *testing.T) {
	expectedIDs := []string{
		"frequent-diseases",
		"age-risk-analysis",
		"seasonal-patterns",
		"disease-report",
		"predictions",
	}
	if len(PredefinedReports) != len(expectedIDs) {
		t.Fatalf("expected %d predefined reports, got %d", len(expectedIDs), len(PredefinedReports))
	}
	for i, expectedID := range expectedIDs {
		if PredefinedReports[i].ID != expectedID {
			t.Errorf("expected report[%d].ID = %s, got %s", i, expectedID, PredefinedReports[i].ID)
		}
	}
}

func TestPredefinedReports_Complete(t *testing.T) {
	for _, r := range PredefinedReports {
		if r.Name == "" || r.Description == "" || r.FileName == "" {
			t.Errorf("report %s is missing name, description or file name", r.ID)
		}
		if len(r.Formats) != 2 {
			t.Errorf("report %s should offer excel and pdf", r.ID)
		}
	}
	if FindReport("predictions").SheetName != "Predictions" {
		t.Error("predictions report should use the Predictions sheet")
	}
}

func TestFindReport_NotFound(t *testing.T) {
	if FindReport("nonexistent") != nil {
		t.Error("expected nil for nonexistent report")
	}
}

func plainTable() Table {
	return Table{Columns: []string{"A", "B"}, Rows: [][]any{{1, 2}, {3, 4}}}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(c.Register("frequent-diseases", func(_ context.Context, _ map[string]string) (*Built, error) {
		return &Built{Table: plainTable()}, nil
	}))
	must(c.Register("disease-report", func(_ context.Context, params map[string]string) (*Built, error) {
		occ := params["occasion"]
		switch occ {
		case "":
			return &Built{Table: plainTable()}, nil
		case "Review":
			return &Built{Table: plainTable(), BaseName: "disease_report_Review"}, nil
		}
		return nil, fmt.Errorf("%w: occasion %q", ErrInvalidParameter, occ)
	}))
	must(c.Register("age-risk-analysis", func(_ context.Context, _ map[string]string) (*Built, error) {
		return &Built{Table: Table{Columns: []string{"Malaria"}, Rows: [][]any{{2}}, IndexName: "Age Group", Index: []string{"0-18"}}}, nil
	}))
	must(c.Register("predictions", func(_ context.Context, params map[string]string) (*Built, error) {
		if len(params) != 0 {
			return nil, fmt.Errorf("unexpected params %v", params)
		}
		return &Built{Table: plainTable()}, nil
	}))
	return c
}

func TestCatalog_RegisterUnknown(t *testing.T) {
	c := NewCatalog()
	err := c.Register("nope", func(context.Context, map[string]string) (*Built, error) { return nil, nil })
	if !errors.Is(err, ErrReportNotFound) {
		t.Errorf("expected ErrReportNotFound, got %v", err)
	}
}

func TestCatalog_Definitions(t *testing.T) {
	defs := newTestCatalog(t).Definitions()
	if len(defs) != 4 {
		t.Fatalf("expected 4 registered reports, got %d", len(defs))
	}
	if defs[0].ID != "frequent-diseases" || defs[1].ID != "age-risk-analysis" {
		t.Errorf("definitions should keep predefined order, got %s, %s", defs[0].ID, defs[1].ID)
	}
}

func TestCatalog_BuildFiltersUndeclaredParams(t *testing.T) {
	c := newTestCatalog(t)
	if _, _, err := c.Build(context.Background(), "predictions", map[string]string{"occasion": "Review"}); err != nil {
		t.Fatalf("undeclared params must not reach the builder: %v", err)
	}
}

func TestCatalog_BuildDefaults(t *testing.T) {
	c := newTestCatalog(t)
	built, def, err := c.Build(context.Background(), "disease-report", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.BaseName != def.FileName {
		t.Errorf("expected base name %s, got %s", def.FileName, built.BaseName)
	}

	built, _, _ = c.Build(context.Background(), "disease-report", map[string]string{"occasion": "Review"})
	if built.BaseName != "disease_report_Review" {
		t.Errorf("builder base name should win, got %s", built.BaseName)
	}
}

func TestCatalog_BuildErrors(t *testing.T) {
	c := newTestCatalog(t)
	if _, _, err := c.Build(context.Background(), "seasonal-patterns", nil); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("unregistered report: expected ErrReportNotFound, got %v", err)
	}
	_, _, err := c.Build(context.Background(), "disease-report", map[string]string{"occasion": "Bogus"})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestCatalog_IndexedMismatch(t *testing.T) {
	c := NewCatalog()
	_ = c.Register("age-risk-analysis", func(context.Context, map[string]string) (*Built, error) {
		return &Built{Table: plainTable()}, nil
	})
	if _, _, err := c.Build(context.Background(), "age-risk-analysis", nil); err == nil {
		t.Error("expected error when an indexed report builds a plain table")
	}
}

func TestCatalog_Export(t *testing.T) {
	c := newTestCatalog(t)
	art, err := c.Export(context.Background(), "predictions", FormatExcel, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art.FileName != "prediction_results.xlsx" || art.ContentType != ContentTypeXLSX {
		t.Errorf("unexpected artifact %s (%s)", art.FileName, art.ContentType)
	}
	if sheets := readSheets(t, art.Body); len(sheets) != 1 || sheets[0] != "Predictions" {
		t.Errorf("expected sheet Predictions, got %v", sheets)
	}
}

// ---------------------------------------------------------------------------
// Archiver
// ---------------------------------------------------------------------------

func TestArchiver_StoresAndAnnounces(t *testing.T) {
	store := blobstore.NewInMemoryBlobStore()
	mgr := notification.NewManager(notification.NewTemplateEngine(), zerolog.Nop())
	pub := &notification.MockPublisher{}
	mgr.SetPublisher(notification.ChannelArchive, pub)
	a := NewArchiver(store, mgr, zerolog.Nop())

	art := &Artifact{Body: []byte("%PDF"), ContentType: ContentTypePDF, FileName: "age_risk_analysis.pdf"}
	meta := a.Archive(context.Background(), "age-risk-analysis", FormatPDF, art)
	if meta == nil {
		t.Fatal("expected archived metadata")
	}
	if meta.Category != ArchiveCategory || meta.Tags["report"] != "age-risk-analysis" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	calls := pub.Calls()
	if len(calls) != 1 || calls[0].Key != "age-risk-analysis" {
		t.Fatalf("expected one archive notification, got %+v", calls)
	}
	if !strings.Contains(string(calls[0].Payload), meta.ID) {
		t.Errorf("notification should reference blob %s", meta.ID)
	}
}

func TestArchiver_FailureIsSwallowed(t *testing.T) {
	a := NewArchiver(blobstore.NewInMemoryBlobStore(), nil, zerolog.Nop())
	art := &Artifact{Body: []byte("x"), ContentType: "application/x-unknown", FileName: "x.bin"}
	if meta := a.Archive(context.Background(), "predictions", FormatPDF, art); meta != nil {
		t.Errorf("expected nil metadata on failure, got %+v", meta)
	}

	var nilArchiver *Archiver
	if nilArchiver.Archive(context.Background(), "predictions", FormatPDF, art) != nil {
		t.Error("nil archiver should be a no-op")
	}
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

func newTestHandler(t *testing.T) (*Handler, *blobstore.InMemoryBlobStore, *echo.Echo) {
	store := blobstore.NewInMemoryBlobStore()
	h := NewHandler(newTestCatalog(t), NewArchiver(store, nil, zerolog.Nop()))
	return h, store, echo.New()
}

func exportRequest(e *echo.Echo, id, query string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+id+"?"+query, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func TestHandler_ListReports(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
	rec := httptest.NewRecorder()
	if err := h.ListReports(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var defs []ReportDefinition
	if err := json.Unmarshal(rec.Body.Bytes(), &defs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(defs) != 4 {
		t.Errorf("expected 4 reports, got %d", len(defs))
	}
}

func TestHandler_ExportPDF(t *testing.T) {
	h, store, e := newTestHandler(t)
	c, rec := exportRequest(e, "frequent-diseases", "format=pdf")
	if err := h.ExportReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != ContentTypePDF {
		t.Errorf("expected %s, got %s", ContentTypePDF, ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); cd != `attachment; filename="most_frequent_diseases.pdf"` {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Error("body is not a PDF")
	}

	id := rec.Header().Get("X-Archive-Id")
	if id == "" {
		t.Fatal("expected X-Archive-Id header")
	}
	if _, err := store.GetMetadata(context.Background(), id); err != nil {
		t.Errorf("archived blob missing: %v", err)
	}
}

func TestHandler_ExportWithOccasion(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, rec := exportRequest(e, "disease-report", "format=excel&occasion=Review")
	if err := h.ExportReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "disease_report_Review.xlsx") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
}

func TestHandler_ExportErrors(t *testing.T) {
	h, _, e := newTestHandler(t)
	tests := []struct {
		name   string
		id     string
		query  string
		status int
	}{
		{"missing format", "frequent-diseases", "", http.StatusBadRequest},
		{"bad format", "frequent-diseases", "format=docx", http.StatusBadRequest},
		{"unknown report", "nope", "format=pdf", http.StatusNotFound},
		{"bad occasion", "disease-report", "format=pdf&occasion=Bogus", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := exportRequest(e, tt.id, tt.query)
			err := h.ExportReport(c)
			var he *echo.HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("expected echo.HTTPError, got %v", err)
			}
			if he.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, he.Code)
			}
		})
	}
}
