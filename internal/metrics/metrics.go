// Package metrics 定义 Prometheus 指标并提供 HTTP 中间件。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// TMDB upstream calls, labelled by operation ("search", "person", "credits").
	TMDBRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_tmdb_requests_total",
			Help: "Total number of TMDB upstream requests",
		},
		[]string{"operation", "status_code"},
	)

	TMDBRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackd_tmdb_request_duration_seconds",
			Help:    "TMDB upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Notification outcomes: result is "sent", "skipped", "published" or "failed".
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_notifications_total",
			Help: "Total number of notification deliveries by channel and result",
		},
		[]string{"channel", "type", "result"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackd_websocket_connections",
			Help: "Current number of live notification WebSocket connections",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTMDBRequest records one upstream call. statusCode 0 means a transport failure.
func RecordTMDBRequest(operation string, statusCode int, duration time.Duration) {
	TMDBRequestsTotal.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	TMDBRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordNotification records a notification outcome.
func RecordNotification(channel, eventType, result string) {
	NotificationsTotal.WithLabelValues(channel, eventType, result).Inc()
}

// Middleware records request count and latency per mux route template.
// Unmatched requests are grouped under "unmatched" to bound label cardinality.
// httpsnoop 保留 Hijacker/Flusher，WebSocket 升级可以穿过这个中间件。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		endpoint := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		RecordAPIRequest(r.Method, endpoint, strconv.Itoa(m.Code), m.Duration)
	})
}
