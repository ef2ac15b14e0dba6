package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sandbox lifecycle metrics
var (
	SandboxesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "replbox_sandboxes_active",
			Help: "Number of currently live sandboxes",
		},
	)

	SandboxesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "replbox_sandboxes_created_total",
			Help: "Total sandboxes created",
		},
	)

	SandboxesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replbox_sandboxes_closed_total",
			Help: "Total sandboxes torn down, by reason",
		},
		[]string{"reason"},
	)

	ProvisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replbox_provision_duration_seconds",
			Help:    "Time to provision a sandbox's directories",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
	)
)

// Execution metrics
var (
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replbox_executions_total",
			Help: "Total code executions, by outcome",
		},
		[]string{"status"},
	)

	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replbox_execution_duration_seconds",
			Help:    "Time from submission to completed output collection",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0, 300.0},
		},
	)

	InstallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replbox_installs_total",
			Help: "Total package installations, by outcome",
		},
		[]string{"status"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replbox_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replbox_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		SandboxesActive,
		SandboxesCreated,
		SandboxesClosed,
		ProvisionDuration,
		ExecutionsTotal,
		ExecutionDuration,
		InstallsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			HTTPRequestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(duration.Seconds())

			return err
		}
	}
}
