// metrics.go — Prometheus HTTP-метрики: cg_http_requests_total,
// cg_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cg_http_requests_total",
			Help: "Общее количество HTTP-запросов.",
		},
		[]string{"method", "path", "status"},
	)

	// Запрос справки длится секунды, поэтому корзины шире DefBuckets.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cg_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах.",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 20, 35, 60},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware собирает количество и длительность запросов по маршрутам.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath сводит пути с идентификаторами к шаблонам маршрутов,
// неизвестные пути — к "other", чтобы ограничить кардинальность меток.
// /api/v1/queries/penal/12345678 → /api/v1/queries/{kind}/{identifier}
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/health/live", "/health/ready", "/metrics",
		"/antpen", "/antpol", "/antjud",
		"/register-key", "/delete-key", "/api/v1/keys":
		return path
	}
	if strings.HasPrefix(path, "/api/v1/queries/") {
		return "/api/v1/queries/{kind}/{identifier}"
	}
	return "other"
}
