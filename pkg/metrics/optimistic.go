package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeBegun     = "begun"
	OutcomeCommitted = "committed"
	OutcomeReverted  = "reverted"
	OutcomeRejected  = "rejected"
)

// OptimisticMetrics counts tracked mutations by entity and outcome.
type OptimisticMetrics struct {
	ops *prometheus.CounterVec
}

func NewOptimisticMetrics(reg prometheus.Registerer) *OptimisticMetrics {
	if reg == nil {
		return &OptimisticMetrics{}
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "optimistic",
		Name:      "operations_total",
		Help:      "Optimistic mutations by entity and outcome (begun, committed, reverted, rejected).",
	}, []string{"entity", "outcome"})
	reg.MustRegister(ops)
	return &OptimisticMetrics{ops: ops}
}

func (m *OptimisticMetrics) Observe(entity, outcome string) {
	if m == nil || m.ops == nil {
		return
	}
	m.ops.WithLabelValues(normalizeLabel(entity), normalizeLabel(outcome)).Inc()
}
