package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlapscan",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlapscan",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlapscan",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Scan metrics
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlapscan",
		Subsystem: "scan",
		Name:      "runs_total",
		Help:      "Total scans by source and outcome (ok, truncated, error)",
	}, []string{"source", "outcome"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlapscan",
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Duration of the in-memory overlap scan",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	PairsFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "overlapscan",
		Subsystem: "scan",
		Name:      "pairs_found",
		Help:      "Overlap pairs reported per scan",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	GeometryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlapscan",
		Subsystem: "scan",
		Name:      "geometry_errors_total",
		Help:      "Footprints skipped because their geometry was unusable",
	}, []string{"source"})

	// Footprint source metrics
	SourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlapscan",
		Subsystem: "source",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of footprint fetches from upstream sources",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"source"})

	SourceFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlapscan",
		Subsystem: "source",
		Name:      "fetch_errors_total",
		Help:      "Total failed footprint fetches",
	}, []string{"source"})

	FootprintsFetched = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlapscan",
		Subsystem: "source",
		Name:      "footprints_fetched",
		Help:      "Footprints returned per fetch",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
	}, []string{"source"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlapscan",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlapscan",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlapscan",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlapscan",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlapscan",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlapscan",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics copies pgxpool.Stat values into the pool gauges. It takes an
// interface so this package does not import pgxpool.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}

// ObserveScan records the outcome of one scan.
func ObserveScan(source string, seconds float64, pairs, geometryErrors int, truncated bool) {
	outcome := "ok"
	if truncated {
		outcome = "truncated"
	}
	ScansTotal.WithLabelValues(source, outcome).Inc()
	ScanDuration.WithLabelValues(source).Observe(seconds)
	PairsFound.Observe(float64(pairs))
	if geometryErrors > 0 {
		GeometryErrors.WithLabelValues(source).Add(float64(geometryErrors))
	}
}
