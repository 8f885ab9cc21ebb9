package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox relay outcome labels.
const (
	OutboxOutcomePublished    = "published"
	OutboxOutcomeRetried      = "retried"
	OutboxOutcomeDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks what the relay did with each outbox row.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

// Inc records one row with the given outcome.
func (m *OutboxMetrics) Inc(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}
