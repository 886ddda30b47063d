package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/salulink/salulink/internal/platform/auth"
)

type entrySink struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (s *entrySink) RecordAccess(entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *entrySink) all() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.entries...)
}

// auditedEcho mounts the case and analysis routes behind Audit. Requests
// carrying X-Test-User are authenticated as that user with the clinician role.
func auditedEcho(sink AuditRecorder) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.Use(RequestID())

	api := e.Group("/api", Audit(zerolog.Nop(), sink))
	api.POST("/analyze", func(c echo.Context) error { return c.JSON(http.StatusOK, map[string]bool{"success": true}) })
	api.GET("/conditions", func(c echo.Context) error { return c.JSON(http.StatusOK, []string{}) })

	fakeAuth := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if u := c.Request().Header.Get("X-Test-User"); u != "" {
				p := auth.Principal{Subject: u, Roles: []string{"clinician"}}
				c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
			}
			return next(c)
		}
	}
	g := api.Group("/cases", fakeAuth)
	g.GET("", func(c echo.Context) error { return c.JSON(http.StatusOK, []string{}) })
	g.POST("", func(c echo.Context) error { return c.JSON(http.StatusCreated, map[string]string{}) })
	g.GET("/:id", func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "case not found") })
	g.DELETE("/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	g.GET("/boom", func(c echo.Context) error { return errors.New("db down") })
	return e
}

func auditRequest(e *echo.Echo, method, target, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("User-Agent", "SaluLink-Web/1.0")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAudit_Entries(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name     string
		method   string
		target   string
		user     string
		resource string
		action   string
		caseID   string
		route    string
		status   int
	}{
		{"analyze anonymous", http.MethodPost, "/api/analyze", "", "analyze", "analyze", "", "/api/analyze", http.StatusOK},
		{"list", http.MethodGet, "/api/cases", "u1", "cases", "read", "", "/api/cases", http.StatusOK},
		{"create", http.MethodPost, "/api/cases", "u2", "cases", "create", "", "/api/cases", http.StatusCreated},
		{"read missing", http.MethodGet, "/api/cases/" + id, "u3", "cases", "read", id, "/api/cases/:id", http.StatusNotFound},
		{"delete", http.MethodDelete, "/api/cases/" + id, "u4", "cases", "delete", id, "/api/cases/:id", http.StatusNoContent},
		{"plain error", http.MethodGet, "/api/cases/boom", "u5", "cases", "read", "", "/api/cases/boom", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &entrySink{}
			rec := auditRequest(auditedEcho(sink), tt.method, tt.target, tt.user)

			entries := sink.all()
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(entries))
			}
			got := entries[0]
			if got.UserID != tt.user {
				t.Errorf("user: got %q, want %q", got.UserID, tt.user)
			}
			if got.Resource != tt.resource || got.Action != tt.action {
				t.Errorf("got %s/%s, want %s/%s", got.Resource, got.Action, tt.resource, tt.action)
			}
			if got.CaseID != tt.caseID {
				t.Errorf("case id: got %q, want %q", got.CaseID, tt.caseID)
			}
			if got.Route != tt.route {
				t.Errorf("route: got %q, want %q", got.Route, tt.route)
			}
			if got.StatusCode != tt.status || rec.Code != tt.status {
				t.Errorf("status: entry %d, response %d, want %d", got.StatusCode, rec.Code, tt.status)
			}
			if got.RequestID == "" || got.RequestID != rec.Header().Get(RequestIDHeader) {
				t.Errorf("request id %q does not match response header", got.RequestID)
			}
			if got.UserAgent != "SaluLink-Web/1.0" || got.IPAddress == "" {
				t.Errorf("missing client details: %+v", got)
			}
		})
	}
}

func TestAudit_SkipsRoutesWithoutNotes(t *testing.T) {
	sink := &entrySink{}
	e := auditedEcho(sink)
	for _, target := range []string{"/api/conditions", "/api/authi", "/health/db", "/"} {
		auditRequest(e, http.MethodGet, target, "")
	}
	if n := len(sink.all()); n != 0 {
		t.Errorf("expected no entries, got %d", n)
	}
}

func TestAudit_RecorderErrorKeepsResponse(t *testing.T) {
	sink := &entrySink{err: errors.New("audit store unavailable")}
	rec := auditRequest(auditedEcho(sink), http.MethodGet, "/api/cases", "u6")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite recorder failure, got %d", rec.Code)
	}
	if len(sink.all()) != 1 {
		t.Error("expected the recorder to be called")
	}
}

func TestAudit_LogOnly(t *testing.T) {
	e := echo.New()
	e.Group("/api", Audit(zerolog.Nop())).POST("/analyze", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuditedResource(t *testing.T) {
	tests := map[string]string{
		"/api/cases":      "cases",
		"/api/cases/123":  "cases",
		"/api/analyze":    "analyze",
		"/api/authi":      "",
		"/api/conditions": "",
		"/cases":          "",
		"/api":            "",
	}
	for path, want := range tests {
		if got := auditedResource(path); got != want {
			t.Errorf("auditedResource(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestAuditAction(t *testing.T) {
	tests := []struct {
		method, resource, want string
	}{
		{http.MethodGet, "cases", "read"},
		{http.MethodHead, "cases", "read"},
		{http.MethodPost, "cases", "create"},
		{http.MethodPut, "cases", "update"},
		{http.MethodPatch, "cases", "update"},
		{http.MethodDelete, "cases", "delete"},
		{http.MethodPost, "analyze", "analyze"},
	}
	for _, tt := range tests {
		if got := auditAction(tt.method, tt.resource); got != tt.want {
			t.Errorf("auditAction(%s, %s) = %q, want %q", tt.method, tt.resource, got, tt.want)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	f := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	if err := f.RecordAccess(AuditEntry{UserID: "u"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != "u" {
		t.Error("expected entry to be passed through")
	}
}
