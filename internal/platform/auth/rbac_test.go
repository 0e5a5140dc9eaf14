package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runRole(roles []string, required ...string) error {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reseed", nil)
	if roles != nil {
		req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	}
	c := e.NewContext(req, httptest.NewRecorder())
	return RequireRole(required...)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := runRole([]string{RoleAnalyst}, RoleAnalyst, "epidemiologist"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := runRole([]string{RoleAdmin}, "epidemiologist"); err != nil {
		t.Errorf("admin should pass any role check: %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	for _, roles := range [][]string{nil, {}, {RoleAnalyst}} {
		err := runRole(roles, RoleAdmin)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusForbidden {
			t.Errorf("roles %v: expected 403, got %v", roles, err)
		}
	}
}

func TestAuthSkipper(t *testing.T) {
	e := echo.New()
	for path, want := range map[string]bool{
		"/health":                   true,
		"/health/db":                true,
		"/api/v1/hospitals":         true,
		"/api/v1/dashboard/summary": false,
		"/api/v1/admin/reseed":      false,
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		c.SetPath(path)
		if got := AuthSkipper(c); got != want {
			t.Errorf("AuthSkipper(%s) = %t, want %t", path, got, want)
		}
		if IsPublicPath(path) != want {
			t.Errorf("IsPublicPath(%s) mismatch", path)
		}
	}
}
