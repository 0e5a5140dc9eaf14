package sandbox

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(store *fakeReplacer) *echo.Echo {
	e := echo.New()
	NewSeedHandler(newTestSeeder(store)).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func TestHandleReseed(t *testing.T) {
	store := &fakeReplacer{deleted: 3}
	e := newTestHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reseed", strings.NewReader(`{"count":25,"seed":9}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Inserted != 25 || res.Deleted != 3 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHandleReseed_EmptyBody(t *testing.T) {
	e := newTestHandler(&fakeReplacer{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reseed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleReseed_BadCount(t *testing.T) {
	e := newTestHandler(&fakeReplacer{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reseed", strings.NewReader(`{"count":-4}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandlePreview(t *testing.T) {
	store := &fakeReplacer{}
	e := newTestHandler(store)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/seed/preview?count=4&seed=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/x-ndjson" {
		t.Errorf("unexpected content type %s", ct)
	}
	if rec.Header().Get("X-Seed") != "2" {
		t.Errorf("expected X-Seed 2, got %q", rec.Header().Get("X-Seed"))
	}
	lines := 0
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var row map[string]any
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if _, ok := row["date"]; !ok {
			t.Errorf("line %d missing date", lines)
		}
		lines++
	}
	if lines != 4 {
		t.Errorf("expected 4 lines, got %d", lines)
	}
	if store.calls != 0 {
		t.Error("preview must not write to the store")
	}
}

func TestHandlePreview_BadQuery(t *testing.T) {
	e := newTestHandler(&fakeReplacer{})
	for _, q := range []string{"count=abc", "seed=x"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/seed/preview?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}
