package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Consumer metrics
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roster_consumer_messages_received_total",
			Help: "Total number of messages received from the queue",
		},
	)

	MessageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roster_consumer_message_outcomes_total",
			Help: "Messages by processing outcome",
		},
		[]string{"event_type", "outcome"},
	)

	PollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roster_consumer_poll_errors_total",
			Help: "Total number of failed queue receive calls",
		},
	)

	DeleteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roster_consumer_delete_errors_total",
			Help: "Total number of failed message acknowledgements",
		},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roster_consumer_processing_duration_seconds",
			Help:    "Time from parse to acknowledgement decision per message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// Publisher metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roster_publisher_events_total",
			Help: "Publish attempts by event type and status",
		},
		[]string{"event_type", "status"},
	)
)

// Outcome labels not produced by the router.
const (
	OutcomeParseError = "parse_error"
)
