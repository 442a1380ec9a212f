package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authorization metrics
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardvault_access_decisions_total",
			Help: "Total number of access decisions by resource and result",
		},
		[]string{"resource", "result"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardvault_sessions_active",
			Help: "Number of resident sessions",
		},
	)

	// Secure storage metrics
	SecureOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardvault_secure_operations_total",
			Help: "Total number of secure storage operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	SecureOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardvault_secure_operation_duration_seconds",
			Help:    "Duration of secure storage operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	IntegrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardvault_integrity_failures_total",
			Help: "Total number of integrity check failures on read",
		},
	)

	// Rollback metrics
	RollbackTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardvault_rollback_triggers_total",
			Help: "Total number of rollback triggers by reason and result",
		},
		[]string{"reason", "result"},
	)

	RollbackStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardvault_rollback_step_duration_seconds",
			Help:    "Duration of rollback remediation steps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// RollbackState is 1 for the current state label and 0 for the others.
	RollbackState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardvault_rollback_state",
			Help: "Current rollback machine state",
		},
		[]string{"state"},
	)

	FaultsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardvault_faults_received_total",
			Help: "Total number of fault signals received by kind and classification",
		},
		[]string{"kind", "critical"},
	)
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
)

// SetRollbackState marks state as current.
func SetRollbackState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		RollbackState.WithLabelValues(s).Set(v)
	}
}
