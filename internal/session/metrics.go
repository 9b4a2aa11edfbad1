package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики сессии.
var (
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cg_session_state",
		Help: "Текущее состояние сессии (1 — активное состояние).",
	}, []string{"state"})

	sessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cg_session_transitions_total",
		Help: "Количество переходов между состояниями сессии.",
	}, []string{"from", "to"})

	sessionKeepaliveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cg_session_keepalive_failures_total",
		Help: "Количество неудачных keepalive-проверок.",
	})

	sessionOpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cg_session_op_errors_total",
		Help: "Количество ошибок операций над сессией.",
	}, []string{"op"})
)

func setStateGauge(current State) {
	for _, s := range States {
		v := 0.0
		if s == current {
			v = 1
		}
		sessionState.WithLabelValues(string(s)).Set(v)
	}
}
