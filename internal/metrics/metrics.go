package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planhub_http_requests_total",
		Help: "HTTP requests served, by method, route and status code.",
	}, []string{"method", "route", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planhub_http_request_duration_seconds",
		Help:    "HTTP request latency, by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	auditQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planhub_audit_dropped_total",
		Help: "Audit entries dropped because the queue was full.",
	})
)

func ObserveRequest(method, route string, code int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func AuditDropped() {
	auditQueueDropped.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
