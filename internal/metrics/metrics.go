// Package metrics は認証・認可ゲートの Prometheus メトリクスを提供します。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics は認証結果とガード判定のカウンターです。nil のままでも安全に呼び出せます。
type Metrics struct {
	authAttempts   *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	logouts        prometheus.Counter
}

// New はメトリクスを作成し reg に登録します。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estate_admin",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Login and register attempts by operation, method and result.",
		}, []string{"operation", "method", "result"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estate_admin",
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route and role guard decisions by route and outcome.",
		}, []string{"route", "outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "estate_admin",
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Explicit logouts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.authAttempts, m.guardDecisions, m.logouts)
	}
	return m
}

// ObserveAuth は login / register の結果を記録します。
func (m *Metrics) ObserveAuth(operation, method string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.authAttempts.WithLabelValues(operation, method, result).Inc()
}

// ObserveGuard はガードの判定結果を記録します。
func (m *Metrics) ObserveGuard(route, outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(route, outcome).Inc()
}

// ObserveLogout はログアウトを記録します。
func (m *Metrics) ObserveLogout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}
