package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dispatch core
type Metrics struct {
	registry *prometheus.Registry

	// Dispatch metrics
	InvocationsTotal        *prometheus.CounterVec
	DecisionsTotal          *prometheus.CounterVec
	ValidationFailuresTotal *prometheus.CounterVec
	ExecutorDuration        *prometheus.HistogramVec
	ExecutorErrorsTotal     *prometheus.CounterVec

	// Confirmation metrics
	PendingConfirmations       prometheus.Gauge
	ConfirmationsResolvedTotal *prometheus.CounterVec
	ConfirmationsExpiredTotal  prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_invocations_total",
				Help: "Total number of tool invocations by final outcome",
			},
			[]string{"tool_name", "outcome"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_policy_decisions_total",
				Help: "Total number of policy decisions",
			},
			[]string{"tool_name", "decision"},
		),
		ValidationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_validation_failures_total",
				Help: "Total number of invocations rejected by schema validation",
			},
			[]string{"tool_name"},
		),
		ExecutorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_executor_duration_seconds",
				Help:    "Duration of executor calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		ExecutorErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_executor_errors_total",
				Help: "Total number of executor failures",
			},
			[]string{"tool_name", "retryable"},
		),

		PendingConfirmations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "confirmations_pending",
				Help: "Number of invocations currently awaiting confirmation",
			},
		),
		ConfirmationsResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmations_resolved_total",
				Help: "Total number of confirmations resolved by a reviewer",
			},
			[]string{"decision"},
		),
		ConfirmationsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "confirmations_expired_total",
				Help: "Total number of confirmations expired by the sweeper",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.InvocationsTotal)
	m.registry.MustRegister(m.DecisionsTotal)
	m.registry.MustRegister(m.ValidationFailuresTotal)
	m.registry.MustRegister(m.ExecutorDuration)
	m.registry.MustRegister(m.ExecutorErrorsTotal)
	m.registry.MustRegister(m.PendingConfirmations)
	m.registry.MustRegister(m.ConfirmationsResolvedTotal)
	m.registry.MustRegister(m.ConfirmationsExpiredTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
