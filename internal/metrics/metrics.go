// Package metrics registers the Prometheus collectors exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Eligibility decisions by notification type and reason.
	NotificationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcos_notification_decisions_total",
			Help: "Eligibility decisions by notification type and reason",
		},
		[]string{"type", "reason"},
	)

	// Prediction outcomes: predicted or insufficient_data.
	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcos_predictions_total",
			Help: "Cycle predictions computed, by outcome",
		},
		[]string{"outcome"},
	)

	ReminderRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcos_reminder_runs_total",
			Help: "Reminder scheduler runs, by status",
		},
		[]string{"status"},
	)

	// Outbox dispatch results: published or failed.
	Dispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcos_notifications_dispatched_total",
			Help: "Notification events handed to the broker, by status",
		},
		[]string{"status"},
	)

	CacheKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcos_prediction_cache_keys",
			Help: "Active keys in the prediction cache",
		},
	)

	NotificationsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcos_notifications_cleaned_total",
			Help: "Read notifications removed by the cleanup task",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pcos_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)
)

// RecordDecision counts one eligibility decision.
func RecordDecision(notificationType, reason string) {
	NotificationDecisions.WithLabelValues(notificationType, reason).Inc()
}

// RecordPrediction counts one prediction by outcome.
func RecordPrediction(outcome string) {
	Predictions.WithLabelValues(outcome).Inc()
}

// RecordReminderRun counts one scheduler run.
func RecordReminderRun(status string) {
	ReminderRuns.WithLabelValues(status).Inc()
}

// RecordDispatch counts one outbox dispatch attempt.
func RecordDispatch(status string) {
	Dispatched.WithLabelValues(status).Inc()
}

// RecordHTTPRequestDuration observes one HTTP request.
func RecordHTTPRequestDuration(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// SetCacheKeys reports the active cache size.
func SetCacheKeys(n int) {
	CacheKeys.Set(float64(n))
}

// RecordCleanup counts removed notifications.
func RecordCleanup(n int64) {
	NotificationsCleaned.Add(float64(n))
}
