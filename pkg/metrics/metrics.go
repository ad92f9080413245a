// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebhooksTotal tracks inbound webhook calls by channel and outcome.
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_total",
			Help: "Inbound webhook calls by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// ConversationsTotal tracks conversations created by inbound webhooks.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"channel"},
	)

	// MessagesTotal tracks messages appended to conversations.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"channel", "role"},
	)

	// VersionConflicts tracks optimistic-concurrency conflicts on conversation updates.
	VersionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_version_conflicts_total",
			Help: "Conversation updates rejected because the stored version moved",
		},
	)

	// ReplyDuration tracks reply synthesis duration.
	ReplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reply_duration_seconds",
			Help:    "Reply synthesis duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"responder", "status"},
	)

	// ReplyFallbacks tracks replies replaced by the apology text.
	ReplyFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_fallbacks_total",
			Help: "Replies that degraded to the fallback text",
		},
		[]string{"responder"},
	)

	// EventPublishFailures tracks conversation events that could not be published.
	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Conversation events that failed to publish",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordWebhook records the outcome of one inbound webhook call.
func RecordWebhook(channel, outcome string) {
	WebhooksTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordReply records a reply synthesis attempt.
func RecordReply(responder, status string, duration float64) {
	ReplyDuration.WithLabelValues(responder, status).Observe(duration)
	if status != "success" {
		ReplyFallbacks.WithLabelValues(responder).Inc()
	}
}
