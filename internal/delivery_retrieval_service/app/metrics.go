package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	natsMessagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_retrieval",
			Name:      "nats_messages_received_total",
			Help:      "Total number of NATS messages received.",
		},
		[]string{"provider"},
	)

	statusUpdatesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_retrieval",
			Name:      "status_updates_total",
			Help:      "Total number of delivery status updates by source and outcome.",
		},
		[]string{"source", "outcome"}, // outcome: applied, unchanged, unknown_recipient, duplicate, error
	)

	statusUpdateDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "delivery_retrieval",
			Name:      "status_update_duration_seconds",
			Help:      "Duration of applying one status update including rollup.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	jobsFinishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_retrieval",
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs that reached a terminal status.",
		},
		[]string{"status"},
	)
)
