// Package observability holds the domain Prometheus collectors and the
// OpenTelemetry tracer bootstrap.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. Label values are bounded: providers and event kinds come
// from closed sets, outcomes and results from the constants below.
var (
	// WebhookEvents counts webhook deliveries by provider, event kind and outcome
	// (applied|ignored|duplicate|rejected|error).
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_webhook_events_total",
			Help: "Billing webhook deliveries by provider, kind and outcome.",
		},
		[]string{"provider", "kind", "outcome"},
	)

	// Generations counts meal plan generations by mode (sync|stream|preview)
	// and result (ok|invalid|upstream_error|cancelled).
	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_generations_total",
			Help: "Meal plan generations by mode and result.",
		},
		[]string{"mode", "result"},
	)

	// EmailsSent counts transactional emails by template and result (ok|error).
	EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_emails_total",
			Help: "Transactional emails by template and result.",
		},
		[]string{"template", "result"},
	)
)

func init() {
	prometheus.MustRegister(WebhookEvents, Generations, EmailsSent)
}

// Result returns "ok" for a nil error and "error" otherwise.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
