// Package metrics defines the Prometheus instruments shared across the
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Decisions counts finished risk evaluations by outcome
	// (fraud, clear, degraded).
	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "evaluator",
		Name:      "decisions_total",
		Help:      "Risk evaluation decisions by outcome.",
	}, []string{"outcome"})

	// HistoryLookups counts history fetches by source (cache, upstream,
	// backup, empty).
	HistoryLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "history",
		Name:      "lookups_total",
		Help:      "Transaction history lookups by source.",
	}, []string{"source"})

	// AccountSyncs counts full account view resyncs by result.
	AccountSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "accountview",
		Name:      "syncs_total",
		Help:      "Full account view resyncs by result.",
	}, []string{"result"})

	// BlockAttempts counts guarded account block calls by result
	// (ok, error, rejected).
	BlockAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "blocker",
		Name:      "attempts_total",
		Help:      "Account block attempts by result.",
	}, []string{"result"})

	// NotificationsSent counts dispatched fraud notifications by result.
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "dispatch",
		Name:      "notifications_total",
		Help:      "Fraud notifications dispatched by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		Decisions,
		HistoryLookups,
		AccountSyncs,
		BlockAttempts,
		NotificationsSent,
	)
}
