// Package metrics exposes Prometheus instrumentation for the vault service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the vault service counters.
type Metrics struct {
	Decisions *prometheus.CounterVec
	Approvals *prometheus.CounterVec
	Vaults    prometheus.Counter
	Pending   prometheus.Gauge
}

// New registers the metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentvault_decisions_total",
			Help: "Transfer request outcomes by result and reason.",
		}, []string{"result", "reason"}),
		Approvals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentvault_pending_resolutions_total",
			Help: "Pending transfer resolutions by result.",
		}, []string{"result"}),
		Vaults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentvault_vaults_created_total",
			Help: "Total vaults created.",
		}),
		Pending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agentvault_pending_transfers",
			Help: "Transfers currently awaiting owner resolution.",
		}),
	}
}

// ObservePendingAdded records a transfer entering the approval queue.
func (m *Metrics) ObservePendingAdded() {
	if m == nil {
		return
	}
	m.Pending.Inc()
}

// ObservePendingRemoved records a queued transfer leaving the queue.
func (m *Metrics) ObservePendingRemoved() {
	if m == nil {
		return
	}
	m.Pending.Dec()
}

// ObserveDecision records one transfer request outcome.
func (m *Metrics) ObserveDecision(result, reason string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(result, reason).Inc()
}

// ObserveResolution records one approve/reject outcome.
func (m *Metrics) ObserveResolution(result string) {
	if m == nil {
		return
	}
	m.Approvals.WithLabelValues(result).Inc()
}

// ObserveVaultCreated records a vault creation.
func (m *Metrics) ObserveVaultCreated() {
	if m == nil {
		return
	}
	m.Vaults.Inc()
}
