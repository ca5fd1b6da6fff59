package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts gateway notification outcomes at the boundary.
type WebhookMetrics struct {
	received *prometheus.CounterVec
}

// NewWebhookMetrics registers webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Name:      "webhook_events_total",
		Help:      "Gateway notifications by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(received)
	return &WebhookMetrics{received: received}
}

// Outcome labels for webhook processing.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// IncEvent records one notification outcome.
func (w *WebhookMetrics) IncEvent(eventType, outcome string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
