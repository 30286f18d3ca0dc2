package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery pipeline metrics.
var (
	// EventsIngestedTotal counts events entering the pipeline by trigger type.
	EventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_events_ingested_total",
			Help: "Total number of events ingested",
		},
		[]string{"type", "source"},
	)

	// DeliveryAttemptsTotal counts terminal delivery attempts by channel and outcome.
	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_delivery_attempts_total",
			Help: "Total number of terminal delivery attempts",
		},
		[]string{"channel", "status"},
	)

	// DeliveryDuration measures channel dispatch duration in seconds.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_delivery_duration_seconds",
			Help:    "Channel dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// DedupSuppressedTotal counts deliveries suppressed by a dedup policy.
	DedupSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_dedup_suppressed_total",
			Help: "Total number of deliveries suppressed as duplicates",
		},
		[]string{"policy"},
	)

	// RenderFailuresTotal counts template rendering failures by template.
	RenderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_render_failures_total",
			Help: "Total number of template rendering failures",
		},
		[]string{"template"},
	)
)
