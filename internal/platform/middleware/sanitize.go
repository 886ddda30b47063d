package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	maxHeaderValueSize = 8 << 10
	maxQueryValueSize  = 256
)

var scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)

// Sanitize rejects requests whose path, headers or query string carry
// traversal sequences, NUL bytes, header splitting or script payloads.
// Note text travels in JSON bodies and is not inspected here.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reason := checkPath(c.Request())
			if reason == "" {
				reason = checkHeaders(c.Request().Header)
			}
			if reason == "" {
				reason = checkQuery(c.QueryParams())
			}
			if reason == "" {
				return next(c)
			}

			rid, _ := c.Get("request_id").(string)
			logger.Warn().
				Str("request_id", rid).
				Str("remote_ip", c.RealIP()).
				Str("path", c.Request().URL.Path).
				Str("reason", reason).
				Msg("request rejected")
			return errorJSON(c, http.StatusBadRequest, reason)
		}
	}
}

func checkPath(req *http.Request) string {
	for _, p := range []string{req.URL.Path, req.URL.RawPath} {
		if hasTraversal(p) {
			return "Path traversal detected"
		}
		if hasNullByte(p) {
			return "Null byte injection detected"
		}
	}
	return ""
}

func checkHeaders(h http.Header) string {
	for name, values := range h {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "Header value exceeds maximum size: " + name
			}
			if strings.ContainsAny(v, "\r\n") {
				return "Header injection detected: " + name
			}
		}
	}
	return ""
}

func checkQuery(q map[string][]string) string {
	for key, values := range q {
		for _, v := range values {
			switch {
			case hasNullByte(key) || hasNullByte(v):
				return "Null byte injection detected in query parameter"
			case len(v) > maxQueryValueSize:
				return "Query parameter too long: " + key
			case scriptPattern.MatchString(key) || scriptPattern.MatchString(v):
				return "Script injection detected in query parameter"
			}
		}
	}
	return ""
}

// hasTraversal matches ".." in plain, percent-encoded and double-encoded form.
func hasTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "..") ||
		strings.Contains(lower, "%2e%2e") ||
		strings.Contains(lower, "%252e")
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, 0) || strings.Contains(strings.ToLower(s), "%00")
}
