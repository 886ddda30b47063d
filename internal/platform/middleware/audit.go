package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/salulink/salulink/internal/platform/auth"
)

// AuditEntry records one access to clinical notes.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	UserRoles  []string
	Resource   string
	CaseID     string
	Action     string
	Method     string
	Route      string
	IPAddress  string
	UserAgent  string
	StatusCode int
}

// AuditRecorder receives every audit entry after it is logged.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs a clinical_access line for every request that reads or writes
// notes: the analyze endpoint and the case routes. Recorder failures are
// logged and never change the response.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			resource := auditedResource(c.Request().URL.Path)
			if resource == "" {
				return next(c)
			}

			err := next(c)
			entry := newAuditEntry(c, resource, err)

			logger.Info().
				Str("type", "clinical_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("case_id", entry.CaseID).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("clinical_access")

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if rerr := r.RecordAccess(entry); rerr != nil {
					logger.Error().Err(rerr).Str("request_id", entry.RequestID).Msg("audit recorder failed")
				}
			}
			return err
		}
	}
}

func newAuditEntry(c echo.Context, resource string, err error) AuditEntry {
	req := c.Request()
	// Auth runs inside this middleware and may have replaced the request.
	p, _ := auth.PrincipalFromContext(req.Context())
	rid, _ := c.Get("request_id").(string)

	entry := AuditEntry{
		Timestamp:  time.Now().UTC(),
		RequestID:  rid,
		UserID:     p.Subject,
		UserRoles:  p.Roles,
		Resource:   resource,
		Action:     auditAction(req.Method, resource),
		Method:     req.Method,
		Route:      c.Path(),
		IPAddress:  c.RealIP(),
		UserAgent:  req.UserAgent(),
		StatusCode: c.Response().Status,
	}
	if id, perr := uuid.Parse(c.Param("id")); perr == nil {
		entry.CaseID = id.String()
	}

	var he *echo.HTTPError
	switch {
	case c.Response().Committed:
	case errors.As(err, &he):
		entry.StatusCode = he.Code
	case err != nil:
		entry.StatusCode = http.StatusInternalServerError
	}
	return entry
}

// auditedResource returns "cases" or "analyze" for paths under /api that
// carry notes, otherwise "".
func auditedResource(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return ""
	}
	seg, _, _ := strings.Cut(rest, "/")
	switch seg {
	case "cases", "analyze":
		return seg
	}
	return ""
}

func auditAction(method, resource string) string {
	if resource == "analyze" {
		return "analyze"
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}
