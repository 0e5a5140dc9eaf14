package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func readAll(c echo.Context) error {
	if _, err := io.ReadAll(c.Request().Body); err != nil {
		return err
	}
	return c.NoContent(http.StatusCreated)
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/observations", strings.NewReader(`{"patient_age":4}`))
	rec := httptest.NewRecorder()
	if err := BodyLimit("1K")(readAll)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/observations", strings.NewReader(strings.Repeat("x", 2048)))
	called := false
	err := BodyLimit("1K")(func(c echo.Context) error {
		called = true
		return nil
	})(e.NewContext(req, httptest.NewRecorder()))
	if statusCode(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %v", err)
	}
	if called {
		t.Error("handler should not run")
	}
}

func TestBodyLimit_RejectsWhileReading(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/observations", strings.NewReader(strings.Repeat("x", 2048)))
	req.ContentLength = -1
	err := BodyLimit("1K")(readAll)(e.NewContext(req, httptest.NewRecorder()))
	if statusCode(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %v", err)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 1 << 20},
		{"512", 512},
		{"4K", 4 << 10},
		{"4KB", 4 << 10},
		{"2M", 2 << 20},
		{"1g", 1 << 30},
		{"lots", 1 << 20},
		{"-5", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.in); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
