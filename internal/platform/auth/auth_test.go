package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-secret-key-for-unit-tests-only")

func sign(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims(sub string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(JWTConfig{SigningKey: testKey})

	p, err := v.Verify(sign(t, validClaims("user-456", "clinician", "registrar"), testKey))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Subject != "user-456" {
		t.Errorf("expected subject user-456, got %q", p.Subject)
	}
	if len(p.Roles) != 2 || p.Roles[0] != "clinician" {
		t.Errorf("unexpected roles %v", p.Roles)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := validClaims("user-1")
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", sign(t, expired, testKey), ErrTokenExpired},
		{"wrong key", sign(t, validClaims("user-1"), []byte("another-key")), ErrInvalidToken},
		{"no subject", sign(t, validClaims(""), testKey), ErrInvalidToken},
		{"no expiry", sign(t, noExpiry, testKey), ErrInvalidToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
	}
	v := NewVerifier(JWTConfig{SigningKey: testKey})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestVerifier_IssuerAndAudience(t *testing.T) {
	v := NewVerifier(JWTConfig{SigningKey: testKey, Issuer: "https://auth.salulink.test", Audience: "salulink-api"})

	good := validClaims("user-123")
	good.Issuer = "https://auth.salulink.test"
	good.Audience = jwt.ClaimStrings{"salulink-api"}
	if _, err := v.Verify(sign(t, good, testKey)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badIssuer := good
	badIssuer.Issuer = "https://elsewhere.test"
	if _, err := v.Verify(sign(t, badIssuer, testKey)); err == nil {
		t.Error("expected wrong issuer to be rejected")
	}

	badAudience := good
	badAudience.Audience = jwt.ClaimStrings{"other-api"}
	if _, err := v.Verify(sign(t, badAudience, testKey)); err == nil {
		t.Error("expected wrong audience to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Token abc", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set(echo.HeaderAuthorization, tt.header)
		}
		got, err := bearerToken(req)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("%q: got (%q, %v)", tt.header, got, err)
		}
	}
}

func runJWT(t *testing.T, header string, next echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	return rec, JWTMiddleware(JWTConfig{SigningKey: testKey})(next)(c)
}

func TestJWTMiddleware_StoresPrincipal(t *testing.T) {
	var got Principal
	_, err := runJWT(t, "Bearer "+sign(t, validClaims("user-9", "clinician"), testKey), func(c echo.Context) error {
		got, _ = PrincipalFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Subject != "user-9" || !got.HasAnyRole("clinician") {
		t.Errorf("unexpected principal %+v", got)
	}
}

func TestJWTMiddleware_Unauthorized(t *testing.T) {
	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", ErrMissingToken.Error()},
		{"basic", "Basic dXNlcjpwYXNz", ErrMissingToken.Error()},
		{"expired", "Bearer " + sign(t, expired, testKey), ErrTokenExpired.Error()},
		{"forged", "Bearer " + sign(t, validClaims("user-1"), []byte("x")), ErrInvalidToken.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			rec, err := runJWT(t, tt.header, func(c echo.Context) error {
				called = true
				return nil
			})
			if called {
				t.Fatal("handler must not run")
			}
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %v", err)
			}
			if he.Message != tt.message {
				t.Errorf("expected message %q, got %v", tt.message, he.Message)
			}
			if rec.Header().Get(echo.HeaderWWWAuthenticate) == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
		})
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := DevAuthMiddleware()(func(c echo.Context) error {
		ctx := c.Request().Context()
		if UserIDFromContext(ctx) != "dev-user" {
			t.Errorf("expected dev-user, got %q", UserIDFromContext(ctx))
		}
		if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleAdmin {
			t.Errorf("expected [admin], got %v", roles)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestContextHelpers_Anonymous(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Error("expected no principal")
	}
	if UserIDFromContext(ctx) != "" || RolesFromContext(ctx) != nil {
		t.Error("expected empty identity")
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name      string
		principal *Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"missing role", &Principal{Subject: "u", Roles: []string{"registrar"}}, http.StatusForbidden},
		{"no roles", &Principal{Subject: "u"}, http.StatusForbidden},
		{"matching role", &Principal{Subject: "u", Roles: []string{"clinician"}}, http.StatusOK},
		{"second role", &Principal{Subject: "u", Roles: []string{"nurse"}}, http.StatusOK},
		{"admin", &Principal{Subject: "u", Roles: []string{RoleAdmin}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), *tt.principal))
			}
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)

			err := RequireRole("clinician", "nurse")(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(c)

			code := rec.Code
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
			if code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}
