package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "send_requests_total",
			Help:      "Total send requests by outcome.",
		},
		[]string{"outcome"}, // accepted, scheduled, rejected, dispatch_failed
	)

	materializedRecipientsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "recipients_materialized_total",
			Help:      "Total message recipient rows created.",
		},
		[]string{"phone_valid"},
	)

	dispatchTriggerDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "messaging",
			Name:      "dispatch_trigger_duration_seconds",
			Help:      "Duration of the handoff to the delivery worker.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "status"}, // kind: send, retry, scheduled
	)

	retryRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "retry_requests_total",
			Help:      "Total retry requests by outcome.",
		},
		[]string{"outcome"},
	)

	templateProviderCallsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "template_provider_calls_total",
			Help:      "Total template submissions and syncs against the provider.",
		},
		[]string{"operation", "status"},
	)
)
