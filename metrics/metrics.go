package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contentpipe"

// Collector holds all Prometheus metrics for the content pipeline.
type Collector struct {
	registry *prometheus.Registry

	// Model exchanges
	exchangesTotal   *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec

	// Pipeline runs
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a collector backed by its own registry, with the Go and process
// collectors included.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.exchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_exchanges_total",
			Help:      "Model exchanges by operation and result",
		},
		[]string{"op", "result"},
	)
	c.exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_exchange_duration_seconds",
			Help:      "Model exchange latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"op"},
	)
	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by kind and outcome",
		},
		[]string{"run", "outcome"},
	)
	c.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"run"},
	)
	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.exchangesTotal,
		c.exchangeDuration,
		c.runsTotal,
		c.runDuration,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)
	return c
}

// ObserveExchange records one model exchange. Its signature matches
// generator.Observer.
func (c *Collector) ObserveExchange(op string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.exchangesTotal.WithLabelValues(op, result).Inc()
	c.exchangeDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRun records a finished pipeline run. Its signature matches
// pipeline.RunObserver.
func (c *Collector) ObserveRun(run, outcome string, elapsed time.Duration) {
	c.runsTotal.WithLabelValues(run, outcome).Inc()
	c.runDuration.WithLabelValues(run).Observe(elapsed.Seconds())
}

// Middleware returns echo middleware that collects HTTP metrics.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			endpoint := ctx.Path()
			if endpoint == "" {
				endpoint = "unknown"
			}
			method := ctx.Request().Method
			c.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
			c.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler returns the Prometheus metrics HTTP handler for this registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
