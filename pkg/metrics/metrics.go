// Package metrics provides Prometheus metrics for the Unchain service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal tracks flag evaluations by outcome
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "evaluation",
			Name:      "requests_total",
			Help:      "Total number of flag evaluations by outcome",
		},
		[]string{"project", "environment", "enabled"},
	)

	// EvaluationDuration tracks single-flag evaluation duration in seconds
	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "unchain",
			Subsystem: "evaluation",
			Name:      "duration_seconds",
			Help:      "Duration of flag evaluations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"project", "environment"},
	)

	// FlagMutationsTotal tracks flag state mutations by operation and status
	FlagMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "flagstate",
			Name:      "mutations_total",
			Help:      "Total number of flag state mutations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// ChangeRequestTransitions tracks change request state transitions
	ChangeRequestTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "change_request",
			Name:      "transitions_total",
			Help:      "Total number of change request state transitions",
		},
		[]string{"to_state"},
	)

	// ChangeRequestApplyDuration tracks how long applying a change request takes
	ChangeRequestApplyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "unchain",
			Subsystem: "change_request",
			Name:      "apply_duration_seconds",
			Help:      "Duration of change request apply operations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// AuditAppendsTotal tracks audit log appends by status
	AuditAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "audit",
			Name:      "appends_total",
			Help:      "Total number of audit log appends by status",
		},
		[]string{"status"},
	)

	// AuditChainVerifications tracks full-chain verification runs
	AuditChainVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "audit",
			Name:      "chain_verifications_total",
			Help:      "Total number of audit chain verification runs by result",
		},
		[]string{"result"},
	)

	// SchedulerCycles tracks scheduler poll cycles
	SchedulerCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of scheduled apply poll cycles by status",
		},
		[]string{"status"},
	)

	// SchedulerAppliedTotal tracks change requests applied by the scheduler
	SchedulerAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "scheduler",
			Name:      "applied_total",
			Help:      "Total number of scheduled change requests applied by status",
		},
		[]string{"status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "unchain",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	// MetricsIngestedTotal tracks client SDK metric buckets ingested
	MetricsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "unchain",
			Subsystem: "client",
			Name:      "metric_buckets_ingested_total",
			Help:      "Total number of client metric buckets ingested",
		},
	)
)

// RecordEvaluation records a flag evaluation metric
func RecordEvaluation(project, environment string, enabled bool, durationSeconds float64) {
	enabledLabel := "false"
	if enabled {
		enabledLabel = "true"
	}
	EvaluationsTotal.WithLabelValues(project, environment, enabledLabel).Inc()
	EvaluationDuration.WithLabelValues(project, environment).Observe(durationSeconds)
}

// RecordFlagMutation records a flag state mutation metric
func RecordFlagMutation(operation, status string) {
	FlagMutationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordChangeRequestTransition records a change request state transition
func RecordChangeRequestTransition(toState string) {
	ChangeRequestTransitions.WithLabelValues(toState).Inc()
}

// RecordAuditAppend records an audit log append
func RecordAuditAppend(status string) {
	AuditAppendsTotal.WithLabelValues(status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
