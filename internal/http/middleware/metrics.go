package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that matched no route, keeping the path
// label bounded.
const unmatchedRoute = "unmatched"

var (
	// opsReqs counts ops requests by method, route and status code.
	opsReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvthread_ops_http_requests_total",
			Help: "Total number of ops HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// opsLat records ops request duration in seconds by route.
	opsLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mvthread_ops_http_request_duration_seconds",
			Help:    "Duration of ops HTTP requests in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route"},
	)

	// opsInflight gauges the number of requests being served.
	opsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mvthread_ops_http_requests_inflight",
			Help: "Current number of in-flight ops HTTP requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(opsReqs, opsLat, opsInflight)
}

// Metrics instruments requests with Prometheus. The route label is the
// registered Gin route, or "unmatched" when none matched.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		opsInflight.Inc()
		defer opsInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		opsReqs.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		opsLat.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
