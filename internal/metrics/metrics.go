package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var Observer = &Metrics{
	mutex:      new(sync.RWMutex),
	prometheus: NewPrometheusMetrics(),
}

func init() {
	prometheus.MustRegister(
		Observer.prometheus.Evaluations,
		Observer.prometheus.Signals,
		Observer.prometheus.Allocations,
		Observer.prometheus.Assessments,
		Observer.prometheus.Executions,
	)
}

type Metrics struct {
	mutex      *sync.RWMutex
	prometheus Prometheus
}

// IncrementEvaluations counts one rule evaluation per strategy/symbol/status.
func (m *Metrics) IncrementEvaluations(labels ...string) {
	m.prometheus.Evaluations.WithLabelValues(labels...).Inc()
}

// IncrementSignals counts one generated or filtered signal.
func (m *Metrics) IncrementSignals(labels ...string) {
	m.prometheus.Signals.WithLabelValues(labels...).Inc()
}

// IncrementAllocations counts one allocation verdict.
func (m *Metrics) IncrementAllocations(labels ...string) {
	m.prometheus.Allocations.WithLabelValues(labels...).Inc()
}

// IncrementAssessments counts one risk assessment verdict.
func (m *Metrics) IncrementAssessments(labels ...string) {
	m.prometheus.Assessments.WithLabelValues(labels...).Inc()
}

// IncrementExecutions counts one execution attempt result.
func (m *Metrics) IncrementExecutions(labels ...string) {
	m.prometheus.Executions.WithLabelValues(labels...).Inc()
}
