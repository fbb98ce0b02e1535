package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poker_ws_connections",
		Help: "Current number of active websocket connections",
	})
	VotesCastTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poker_votes_cast_total",
		Help: "Total number of votes cast",
	})
	RevealsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poker_reveals_total",
		Help: "Total number of round reveals",
	})
	RoundsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poker_rounds_started_total",
		Help: "Total number of rounds started (resets and topic changes)",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, VotesCastTotal, RevealsTotal, RoundsStartedTotal, HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware records basic request metrics for Prometheus scrapes.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
