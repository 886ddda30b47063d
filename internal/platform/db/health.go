package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool snapshot reported by /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is the /health/db response body.
type HealthReport struct {
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
	Latency string    `json:"latency"`
	Pool    PoolStats `json:"pool"`
}

// HealthChecker pings the database and reports pool usage.
type HealthChecker struct {
	db      Pinger
	stats   func() PoolStats
	timeout time.Duration
}

func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{
		db:      pool,
		stats:   func() PoolStats { return GetPoolStats(pool) },
		timeout: 5 * time.Second,
	}
}

// Check pings within the checker's timeout.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	report := HealthReport{Status: "healthy", Latency: time.Since(start).String(), Pool: h.stats()}
	if err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
	}
	return report
}

// Handler serves the report, with 503 when the ping fails.
func (h *HealthChecker) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		report := h.Check(c.Request().Context())
		code := http.StatusOK
		if report.Error != "" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	}
}
