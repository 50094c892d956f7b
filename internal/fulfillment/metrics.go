package fulfillment

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricTransitionsTotal     = "fulfillment_transitions_total"
	MetricOrphanEventsTotal    = "fulfillment_orphan_events_total"
	MetricGrantFailuresTotal   = "fulfillment_grant_failures_total"
	MetricInconsistenciesTotal = "fulfillment_inconsistencies_total"
)

// Metrics contains Prometheus metrics for fulfillment processing.
// All operations are thread-safe.
type Metrics struct {
	transitions     *prometheus.CounterVec
	orphanEvents    *prometheus.CounterVec
	grantFailures   *prometheus.CounterVec
	inconsistencies *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTransitionsTotal,
				Help: "Total number of payment intent state transitions by from and to status",
			},
			[]string{"from", "to"},
		),
		orphanEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricOrphanEventsTotal,
				Help: "Total number of webhook events that matched no known payment intent",
			},
			[]string{"event_type"},
		),
		grantFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricGrantFailuresTotal,
				Help: "Total number of grant failures after a successful payment transition",
			},
			[]string{"kind"},
		),
		inconsistencies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricInconsistenciesTotal,
				Help: "Total number of paid-but-not-granted inconsistencies requiring operator attention",
			},
			[]string{"kind"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.transitions,
		m.orphanEvents,
		m.grantFailures,
		m.inconsistencies,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncTransitions increments the transitions counter.
func (m *Metrics) IncTransitions(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// IncOrphanEvents increments the orphan events counter.
func (m *Metrics) IncOrphanEvents(eventType string) {
	m.orphanEvents.WithLabelValues(eventType).Inc()
}

// IncGrantFailures increments the grant failures counter.
func (m *Metrics) IncGrantFailures(kind string) {
	m.grantFailures.WithLabelValues(kind).Inc()
}

// IncInconsistencies increments the inconsistencies counter.
func (m *Metrics) IncInconsistencies(kind string) {
	m.inconsistencies.WithLabelValues(kind).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transitions,
		m.orphanEvents,
		m.grantFailures,
		m.inconsistencies,
	}
}
