// Prometheus instrumentation for the listings API. Metrics() measures
// request counts, latency, in-flight concurrency, and response sizes.
//
// Labels stay low-cardinality on purpose: the path label is the registered
// route template, so GET /api/v1/houses/9f3c… is recorded under
// /api/v1/houses/:id instead of one series per house. Collectors are safe
// for concurrent use.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpRequests counts requests by method, route template, and status.
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLatency records request duration in seconds. Status is omitted to
	// keep the histogram series count down.
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInFlight gauges requests currently being handled.
	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// httpResponseSize captures response sizes in bytes. The buckets span a
	// single listing payload (a few hundred bytes) up to a full catalog page
	// or exported sheet in the megabyte range.
	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10,
				10 << 10, 25 << 10, 50 << 10,
				100 << 10, 250 << 10, 500 << 10,
				1 << 20, 2 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpLatency, httpInFlight, httpResponseSize)
}

// Metrics returns a Gin middleware recording Prometheus series per request:
// http_requests_total(method, path, status), http_request_duration_seconds
// and http_response_size_bytes by (method, path), and the
// http_requests_inflight gauge around handler execution.
//
// The path label prefers c.FullPath(); unmatched requests (404s) fall back
// to the raw URL path. A negative writer size, reported when no body was
// written, is not observed.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		size := c.Writer.Size() // -1 when no body was written

		httpRequests.WithLabelValues(method, path, status).Inc()
		httpLatency.WithLabelValues(method, path).Observe(dur)
		if size >= 0 {
			httpResponseSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
