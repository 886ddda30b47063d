package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func runRequestID(req *http.Request) (string, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	var seen string
	_ = RequestID()(func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return nil
	})(c)
	return seen, rec
}

func TestRequestID(t *testing.T) {
	t.Run("generates when missing", func(t *testing.T) {
		rid, rec := runRequestID(httptest.NewRequest(http.MethodPost, "/api/analyze", nil))
		if rid == "" {
			t.Fatal("expected a generated request id")
		}
		if rec.Header().Get(RequestIDHeader) != rid {
			t.Errorf("expected response header %q, got %q", rid, rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
		req.Header.Set(RequestIDHeader, "ward-7-intake")
		rid, rec := runRequestID(req)
		if rid != "ward-7-intake" || rec.Header().Get(RequestIDHeader) != "ward-7-intake" {
			t.Errorf("expected caller id to be kept, got %q", rid)
		}
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 129))
		rid, _ := runRequestID(req)
		if len(rid) > 128 || rid == "" {
			t.Errorf("expected a fresh id, got %q", rid)
		}
	})
}

func TestLogger_LogsRouteAndStatus(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestID(), Logger(zerolog.New(&buf)))
	e.GET("/api/cases/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/cases/abc", nil)
	req.Header.Set(RequestIDHeader, "req-9")
	e.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	want := map[string]interface{}{
		"level":      "info",
		"request_id": "req-9",
		"method":     "GET",
		"path":       "/api/cases/abc",
		"route":      "/api/cases/:id",
		"status":     float64(http.StatusOK),
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("log field %s: got %v, want %v", k, line[k], v)
		}
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-panic")

	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("tokenizer state corrupted")
	})(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if strings.Contains(fmt.Sprint(he.Message), "tokenizer") {
		t.Error("panic value must not reach the client")
	}
	logged := buf.String()
	if !strings.Contains(logged, "req-panic") || !strings.Contains(logged, "tokenizer state corrupted") {
		t.Errorf("expected request id and panic value in log, got %q", logged)
	}
}

func TestRecovery_RepanicsOnAbort(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	_ = Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic(http.ErrAbortHandler)
	})(c)
}

func TestRecovery_PassesThrough(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/health", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogger_RecordsErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")

	h := Logger(logger)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "No text provided")
	})
	if err := h(c); err == nil {
		t.Fatal("expected handler error to propagate")
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if line["status"] != float64(http.StatusBadRequest) {
		t.Errorf("expected status 400 in log, got %v", line["status"])
	}
	if line["level"] != "warn" {
		t.Errorf("expected warn level, got %v", line["level"])
	}
	if line["request_id"] != "req-1" {
		t.Errorf("expected request_id req-1, got %v", line["request_id"])
	}
}

func TestErrorHandler_HTTPError(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "condition not found")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "condition not found" {
		t.Errorf("expected message, got %q", body.Error)
	}
}

func TestErrorHandler_UnknownRoute(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error == "" {
		t.Error("expected error message for unknown route")
	}
}

func TestErrorHandler_PlainErrorIs500(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.New(&buf))
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("pool closed")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "Internal Server Error" {
		t.Errorf("expected generic message, got %q", body.Error)
	}
	if !bytes.Contains(buf.Bytes(), []byte("pool closed")) {
		t.Error("expected server error to be logged")
	}
}

func TestErrorHandler_HeadHasNoBody(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}
