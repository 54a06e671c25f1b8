package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the service's request counters, exposed on /metrics.
type Metrics struct {
	CheckoutSessionsCreated prometheus.Counter
	WebhookEvents           *prometheus.CounterVec
}

// NewMetrics registers the counters with reg. Tests pass a fresh registry to
// avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CheckoutSessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkout_sessions_created_total",
			Help: "Hosted checkout sessions created at the payment provider.",
		}),
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Verified webhook events by type and processing outcome.",
		}, []string{"event_type", "outcome"}),
	}
}
