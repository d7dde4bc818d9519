package config

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is passed explicitly to the components that record it; there is
// no global registry so tests can construct isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	PolicyDecisions *prometheus.CounterVec
	EventsAppended  prometheus.Counter
	TasksProcessed  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	self := &Metrics{
		Registry: registry,
		PolicyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringgate",
			Name:      "policy_decisions_total",
			Help:      "Policy gate evaluations by outcome.",
		}, []string{"outcome"}),
		EventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ringgate",
			Name:      "events_appended_total",
			Help:      "Events appended to the audit ledger.",
		}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringgate",
			Name:      "tasks_processed_total",
			Help:      "Background tasks processed by status.",
		}, []string{"status"}),
	}

	registry.MustRegister(self.PolicyDecisions, self.EventsAppended, self.TasksProcessed)

	return self
}
