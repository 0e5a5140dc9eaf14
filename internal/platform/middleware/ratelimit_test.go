package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

// newRateLimitedEcho serves okHandler behind RateLimit. An X-Test-User header
// stands in for the auth middleware setting user_id.
func newRateLimitedEcho(cfg RateLimitConfig) *echo.Echo {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if u := c.Request().Header.Get("X-Test-User"); u != "" {
				c.Set("user_id", u)
			}
			return next(c)
		}
	})
	e.Use(RateLimit(cfg))
	e.GET("/api/v1/dashboard/summary", okHandler)
	return e
}

func hit(e *echo.Echo, ip, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/summary", nil)
	req.RemoteAddr = ip + ":1234"
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	e := newRateLimitedEcho(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3, ExpiresIn: time.Minute})

	for i := 0; i < 3; i++ {
		if rec := hit(e, "10.0.0.1", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := hit(e, "10.0.0.1", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Errorf("expected X-RateLimit-Limit 1, got %q", got)
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	e := newRateLimitedEcho(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, ExpiresIn: time.Minute})

	if rec := hit(e, "10.0.0.1", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := hit(e, "10.0.0.2", ""); rec.Code != http.StatusOK {
		t.Errorf("second client should have its own bucket, got %d", rec.Code)
	}
	// Same IP, but authenticated callers are keyed by subject.
	if rec := hit(e, "10.0.0.1", "analyst"); rec.Code != http.StatusOK {
		t.Errorf("authenticated caller should have its own bucket, got %d", rec.Code)
	}
	if rec := hit(e, "10.0.0.1", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for exhausted IP, got %d", rec.Code)
	}
}

func TestRateLimit_InvalidConfigUsesDefaults(t *testing.T) {
	e := newRateLimitedEcho(RateLimitConfig{})
	burst := DefaultRateLimitConfig().BurstSize
	for i := 0; i < burst; i++ {
		if rec := hit(e, "10.0.0.9", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d within default burst: expected 200, got %d", i, rec.Code)
		}
	}
}

func statusCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}
