// Package metrics defines the Prometheus instrumentation for the
// authorization engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthzDecisions counts guard outcomes, labeled by outcome
	// (allow, unauthenticated, forbidden, error).
	AuthzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "garnet",
		Name:      "authz_decisions_total",
		Help:      "Authorization guard decisions by outcome.",
	}, []string{"outcome"})

	// CacheLookups counts allow-list cache lookups, labeled hit or miss.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "garnet",
		Name:      "allowlist_cache_lookups_total",
		Help:      "Allow-list cache lookups by result.",
	}, []string{"result"})

	// AuditWriteFailures counts audit log writes that could not be
	// persisted. These never fail the request, so the counter is the
	// only durable signal.
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "garnet",
		Name:      "audit_write_failures_total",
		Help:      "Audit log writes that failed to persist.",
	})
)
