package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics counts change notifications flowing through the hub.
type RealtimeMetrics struct {
	received   *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	listeners  *prometheus.GaugeVec
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "changes_received_total",
		Help:      "Change notifications received per watched table and operation.",
	}, []string{"table", "op"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "changes_duplicate_total",
		Help:      "Change notifications dropped because their event id was already seen.",
	}, []string{"table"})
	listeners := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "listeners",
		Help:      "Listeners currently attached per watched table.",
	}, []string{"table"})
	reg.MustRegister(received, duplicates, listeners)
	return &RealtimeMetrics{received: received, duplicates: duplicates, listeners: listeners}
}

func (m *RealtimeMetrics) IncReceived(table, op string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(table), normalizeLabel(op)).Inc()
}

func (m *RealtimeMetrics) IncDuplicate(table string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(table)).Inc()
}

func (m *RealtimeMetrics) SetListeners(table string, n int) {
	if m == nil || m.listeners == nil {
		return
	}
	m.listeners.WithLabelValues(normalizeLabel(table)).Set(float64(n))
}
