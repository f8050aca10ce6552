// Package metrics exposes Prometheus counters for quota decisions and model calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resumeai"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	analyses       *prometheus.CounterVec
	quotaDecisions *prometheus.CounterVec
	modelCalls     *prometheus.CounterVec
	usersCreated   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Resume analyses by outcome (charged, fallback, rejected).",
		}, []string{"outcome"}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Entitlement decisions by operation and result.",
		}, []string{"operation", "result"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model collaborator calls by operation and status.",
		}, []string{"operation", "status"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_created_total",
			Help:      "Users created on first identity resolution.",
		}),
	}
	reg.MustRegister(
		m.analyses,
		m.quotaDecisions,
		m.modelCalls,
		m.usersCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Analysis(outcome string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QuotaDecision(operation string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.quotaDecisions.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ModelCall(operation, status string) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) UserCreated() {
	if m == nil {
		return
	}
	m.usersCreated.Inc()
}
