package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"viewledger/core/events"
)

// EventMetrics counts committed ledger events by type. It implements
// events.Emitter so it can sit on the processor's fan-out.
type EventMetrics struct {
	committed *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *EventMetrics
)

// Events returns the metrics registry tracking structured ledger events.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = NewEventMetrics(prometheus.DefaultRegisterer)
	})
	return eventRegistry
}

// NewEventMetrics builds and registers event metrics on reg.
func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	m := &EventMetrics{
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "committed_total",
			Help:      "Count of committed ledger events segmented by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.committed)
	return m
}

// Emit implements events.Emitter.
func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	typ := evt.EventType()
	if typ == "" {
		typ = "unknown"
	}
	m.committed.WithLabelValues(typ).Inc()
}
