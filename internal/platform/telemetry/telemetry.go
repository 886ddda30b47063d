// Package telemetry exposes request and analysis metrics for Prometheus.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config identifies the service in the build_info series.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// RuntimeMetrics adds the Go runtime and process collectors.
	RuntimeMetrics bool
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "salulink"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "1.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

var (
	durationBuckets = []float64{0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0}
	sizeBuckets     = prometheus.ExponentialBuckets(100, 10, 6)
)

// Provider owns a private registry so tests and the server never share
// series.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	durations  *prometheus.HistogramVec
	sizes      *prometheus.HistogramVec
	active     prometheus.Gauge
	analyses   *prometheus.CounterVec
	conditions *prometheus.CounterVec
}

func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	tp := &Provider{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: durationBuckets,
		}, []string{"method", "route", "status_code"}),
		sizes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_server_request_size_bytes",
			Help:    "Size of HTTP request bodies in bytes.",
			Buckets: sizeBuckets,
		}, []string{"route"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of active HTTP requests.",
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_requests_total",
			Help: "Analyses by extraction method.",
		}, []string{"method"}),
		conditions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_conditions_detected_total",
			Help: "Conditions reported by analyses.",
		}, []string{"condition"}),
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "salulink_build_info",
		Help: "Service identity. Always 1.",
		ConstLabels: prometheus.Labels{
			"service":     cfg.ServiceName,
			"version":     cfg.ServiceVersion,
			"environment": cfg.Environment,
		},
	})
	info.Set(1)

	tp.registry.MustRegister(tp.durations, tp.sizes, tp.active, tp.analyses, tp.conditions, info)
	if cfg.RuntimeMetrics {
		tp.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return tp
}

// Registry is exposed for tests and for callers adding their own collectors.
func (tp *Provider) Registry() *prometheus.Registry {
	return tp.registry
}

// RecordAnalysis counts one analyze call by method and the conditions it
// reported.
func (tp *Provider) RecordAnalysis(method string, conditions []string) {
	tp.analyses.WithLabelValues(method).Inc()
	for _, c := range conditions {
		tp.conditions.WithLabelValues(c).Inc()
	}
}

// RegisterGauge adds a gauge read from fn at scrape time. Registering the
// same name twice is an error.
func (tp *Provider) RegisterGauge(name, help string, fn func() int64) error {
	return tp.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, func() float64 { return float64(fn()) }))
}

// MetricsMiddleware observes duration and in-flight count for every request
// and the body size of requests that declare one. Series are labelled by
// route pattern so ids in paths do not create new series.
func (tp *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tp.active.Inc()
			defer tp.active.Dec()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			tp.durations.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(responseStatus(c, err))).
				Observe(elapsed.Seconds())
			if n := c.Request().ContentLength; n > 0 {
				tp.sizes.WithLabelValues(route).Observe(float64(n))
			}
			return err
		}
	}
}

// responseStatus is the code the client will see. Errors are rendered by
// the error handler after this middleware returns.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// PrometheusHandler serves the registry in the text exposition format.
func (tp *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{
		Registry: tp.registry,
	}))
}
