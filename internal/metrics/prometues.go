package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_events_received_total",
			Help: "Total number of ad beacons received, by kind",
		},
		[]string{"kind"},
	)

	EventsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_events_processed_total",
			Help: "Total number of ad events persisted",
		},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_events_dropped_total",
			Help: "Total number of ad events that could not be persisted",
		},
	)

	ResponseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	QueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ad_event_queue_size",
			Help: "Current size of the event processing queue",
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ad_sessions_active",
			Help: "Ad playback sessions currently connected",
		},
	)

	SessionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_session_outcomes_total",
			Help: "Finished ad playback sessions, by format and outcome",
		},
		[]string{"format", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(EventsProcessed)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(ResponseTime)
	prometheus.MustRegister(QueueSize)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(SessionOutcomes)
}
