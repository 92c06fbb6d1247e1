package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// outcome is "ok" or the error kind of the failed export.
	deliveryLogExportsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Subsystem: "delivery_log",
			Name:      "requests_total",
			Help:      "Delivery log exports by outcome.",
		},
		[]string{"outcome"},
	)

	deliveryLogExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "export",
			Subsystem: "delivery_log",
			Name:      "duration_seconds",
			Help:      "Time spent rendering a delivery log.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	deliveryLogRowsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Subsystem: "delivery_log",
			Name:      "rows_total",
			Help:      "Recipient rows written to delivery logs, by recipient status.",
		},
		[]string{"recipient_status"},
	)
)
