package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	CatalogQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_queries_total",
			Help: "Catalog page fetches by sort key and outcome",
		},
		[]string{"sort", "outcome"},
	)

	CatalogFilteredOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_records_filtered_total",
			Help: "Records dropped by in-memory catalog filters",
		},
	)

	UploadTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_state_transitions_total",
			Help: "Upload unit state transitions",
		},
		[]string{"platform", "state"},
	)

	UploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_bytes_total",
			Help: "Bytes acknowledged by object storage",
		},
	)

	ActiveUploads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upload_active_transfers",
			Help: "Transfers currently in flight",
		},
	)

	UploadStreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upload_stream_clients",
			Help: "Open upload event WebSocket connections",
		},
	)

	UploadStreamMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_stream_messages_total",
			Help: "Upload stream messages by type and direction",
		},
		[]string{"type", "direction"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(CatalogQueries)
	prometheus.MustRegister(CatalogFilteredOut)
	prometheus.MustRegister(UploadTransitions)
	prometheus.MustRegister(UploadBytes)
	prometheus.MustRegister(ActiveUploads)
	prometheus.MustRegister(UploadStreamClients)
	prometheus.MustRegister(UploadStreamMessages)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
