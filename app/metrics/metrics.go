// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UsageRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healing_usage_recorded_total",
			Help: "Metered actions appended to the usage ledger",
		},
		[]string{"feature"},
	)

	EntitlementDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healing_entitlement_denied_total",
			Help: "Requests denied by the entitlement resolver",
		},
		[]string{"feature", "reason"},
	)

	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healing_sessions_started_total",
			Help: "Healing sessions created",
		},
		[]string{"feature"},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healing_sessions_completed_total",
			Help: "Healing sessions completed, split by whether a free session was charged",
		},
		[]string{"feature", "charged"},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healing_sessions_expired_total",
			Help: "Stale sessions closed by the sweeper",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripe_webhook_events_total",
			Help: "Payment provider events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stripe_call_duration_seconds",
			Help: "Latency of payment provider API calls",
		},
		[]string{"operation"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)
