// health.go — обработчики health endpoints.
// /health — совместимый ответ {status, service, timestamp}
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (сессия мессенджера и PostgreSQL)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/certgate/internal/config"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	sessionChecker ReadinessChecker
	pgChecker      ReadinessChecker
	promHandler    http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// Любой checker может быть nil — readiness вернёт для него "fail".
func NewHealthHandler(sessionChecker, pgChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		sessionChecker: sessionChecker,
		pgChecker:      pgChecker,
		promHandler:    promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Session    healthCheckResult `json:"session"`
		PostgreSQL healthCheckResult `json:"postgresql"`
	} `json:"checks"`
}

type healthLegacyResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// Health — ответ в формате исторического клиента. Всегда 200, пока процесс жив.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLegacyResponse{
		Status:    "OK",
		Service:   ServiceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   ServiceName,
	})
}

// HealthReady — readiness probe. Проверяет сессию мессенджера и PostgreSQL.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   ServiceName,
	}
	resp.Checks.Session = check(h.sessionChecker)
	resp.Checks.PostgreSQL = check(h.pgChecker)
	resp.Status = overallStatus(resp.Checks.Session.Status, resp.Checks.PostgreSQL.Status)

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func check(c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	st, msg := c.CheckReady()
	return healthCheckResult{Status: st, Message: msg}
}

const (
	statusFail     = "fail"
	statusDegraded = "degraded"
)

// overallStatus: fail если хотя бы одна зависимость fail,
// degraded если хотя бы одна degraded, иначе ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return "ok"
}
