package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "analyst-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{RoleAnalyst},
	}
}

func runJWT(t *testing.T, cfg JWTConfig, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/summary", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	err := JWTMiddleware(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	return c, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tok := createTestToken(t, validClaims(), testSigningKey)
	c, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != "analyst-1" {
		t.Errorf("expected analyst-1, got %s", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleAnalyst {
		t.Errorf("unexpected roles %v", roles)
	}
	if c.Get("user_id") != "analyst-1" {
		t.Errorf("expected user_id on echo context, got %v", c.Get("user_id"))
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExp := validClaims()
	noExp.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", createTestToken(t, validClaims(), []byte("another-key-another-key-another!!"))},
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"no expiry", createTestToken(t, noExp, testSigningKey)},
		{"wrong issuer", createTestToken(t, wrongIssuer, testSigningKey)},
		{"garbage", "not.a.jwt"},
	}
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "surveillance"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, cfg, "Bearer "+tt.token)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_RejectsNoneAlg(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/health")

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("public path should skip auth: %v", err)
	}
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/admin/reseed", nil), httptest.NewRecorder())

	var roles []string
	err := DevAuthMiddleware(JWTConfig{})(func(c echo.Context) error {
		roles = RolesFromContext(c.Request().Context())
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected dev admin role, got %v", roles)
	}
}

func TestDevAuthMiddleware_ValidatesPresentedToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, validClaims(), testSigningKey))
	c := e.NewContext(req, httptest.NewRecorder())

	var user string
	err := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})(func(c echo.Context) error {
		user = UserIDFromContext(c.Request().Context())
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "analyst-1" {
		t.Errorf("expected token subject, got %q", user)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer junk")
	err = DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})(func(echo.Context) error { return nil })(e.NewContext(bad, httptest.NewRecorder()))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestIssueToken_RoundTrip(t *testing.T) {
	now := time.Now()
	tok, err := IssueToken(testSigningKey, TokenRequest{Subject: "ops", Roles: []string{RoleAdmin}, Issuer: "surveillance", TTL: time.Minute}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := runJWT(t, JWTConfig{SigningKey: testSigningKey, Issuer: "surveillance"}, "Bearer "+tok)
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if !HasRole(RolesFromContext(c.Request().Context()), RoleAdmin) {
		t.Error("expected admin role from issued token")
	}
}

func TestIssueToken_Validation(t *testing.T) {
	if _, err := IssueToken(nil, TokenRequest{Subject: "x"}, time.Now()); err == nil {
		t.Error("expected error without key")
	}
	if _, err := IssueToken(testSigningKey, TokenRequest{}, time.Now()); err == nil {
		t.Error("expected error without subject")
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	if UserIDFromContext(context.Background()) != "" || RolesFromContext(context.Background()) != nil {
		t.Error("expected zero values from empty context")
	}
}

func TestJWTMiddleware_WebsocketQueryToken(t *testing.T) {
	e := echo.New()
	tok := createTestToken(t, validClaims(), testSigningKey)
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	req := httptest.NewRequest(http.MethodGet, "/api/v1/live?access_token="+tok, nil)
	req.Header.Set("Upgrade", "websocket")
	if err := mw(ok)(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("expected upgrade with query token to pass, got %v", err)
	}

	plain := httptest.NewRequest(http.MethodGet, "/api/v1/live?access_token="+tok, nil)
	expectStatus(t, mw(ok)(e.NewContext(plain, httptest.NewRecorder())), http.StatusUnauthorized)
}
