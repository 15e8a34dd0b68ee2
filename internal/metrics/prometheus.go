package metrics

import "github.com/prometheus/client_golang/prometheus"

type Prometheus struct {
	Evaluations *prometheus.CounterVec
	Signals     *prometheus.CounterVec
	Allocations *prometheus.CounterVec
	Assessments *prometheus.CounterVec
	Executions  *prometheus.CounterVec
}

func NewPrometheusMetrics() Prometheus {
	return Prometheus{
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steer",
				Name:      "evaluations",
			}, []string{"strategy", "symbol", "status"}),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steer",
				Name:      "signals",
			}, []string{"strategy", "symbol", "type", "outcome"}),
		Allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steer",
				Name:      "allocations",
			}, []string{"strategy", "status"}),
		Assessments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steer",
				Name:      "assessments",
			}, []string{"strategy", "level", "acceptable"}),
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steer",
				Name:      "executions",
			}, []string{"strategy", "symbol", "result"}),
	}
}
