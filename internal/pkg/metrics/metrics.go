package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a reconciliation.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeDenied    = "denied"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

var (
	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsetup",
		Subsystem: "reconcile",
		Name:      "total",
		Help:      "Class setup reconciliations broken down by outcome.",
	}, []string{"outcome"})

	reconcileLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classsetup",
		Subsystem: "reconcile",
		Name:      "latency_seconds",
		Help:      "Latency distribution of class setup reconciliations.",
		Buckets: []float64{
			0.005, 0.01, 0.02, 0.05,
			0.1, 0.2, 0.5, 1,
			2, 5,
		},
	}, []string{"outcome"})

	classChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsetup",
		Subsystem: "reconcile",
		Name:      "class_changes_total",
		Help:      "Classes created, updated and deleted by committed reconciliations.",
	}, []string{"operation"})

	subpartsReowned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classsetup",
		Subsystem: "reconcile",
		Name:      "subparts_reowned_total",
		Help:      "Subparts whose managing department changed in a committed reconciliation.",
	})

	hookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsetup",
		Subsystem: "hooks",
		Name:      "failures_total",
		Help:      "Best-effort hook and change log failures that were logged and swallowed.",
	}, []string{"hook"})

	txRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classsetup",
		Subsystem: "db",
		Name:      "transaction_retries_total",
		Help:      "Database transactions retried after a serialization failure or deadlock.",
	})
)

// RecordReconciliation observes one finished reconciliation.
func RecordReconciliation(outcome string, latency time.Duration) {
	labels := prometheus.Labels{"outcome": outcome}
	reconciliations.With(labels).Inc()
	reconcileLatency.With(labels).Observe(latency.Seconds())
}

// RecordClassChanges adds the class counts of a committed reconciliation.
func RecordClassChanges(created, updated, deleted, reowned int) {
	classChanges.WithLabelValues("create").Add(float64(created))
	classChanges.WithLabelValues("update").Add(float64(updated))
	classChanges.WithLabelValues("delete").Add(float64(deleted))
	subpartsReowned.Add(float64(reowned))
}

// RecordHookFailure counts a swallowed failure of the named hook.
func RecordHookFailure(hook string) {
	hookFailures.WithLabelValues(hook).Inc()
}

// RecordTransactionRetry counts a retried database transaction.
func RecordTransactionRetry() {
	txRetries.Inc()
}
