// Package observability exposes application metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics handles application metrics and monitoring.
type Metrics struct {
	VoteActions  *prometheus.CounterVec
	CASConflicts prometheus.Counter
	CASRetries   prometheus.Counter
	StoreOps     *prometheus.CounterVec
}

// NewMetrics creates and registers the application metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VoteActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_vote_actions_total",
			Help: "Vote toggle outcomes by action.",
		}, []string{"action"}),
		CASConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursehub_cas_conflicts_total",
			Help: "Compare-and-swap version conflicts observed.",
		}),
		CASRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursehub_cas_retries_total",
			Help: "Retry attempts scheduled after a version conflict.",
		}),
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_store_operations_total",
			Help: "Keyed store operations by kind and result.",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(m.VoteActions, m.CASConflicts, m.CASRetries, m.StoreOps)
	return m
}

// NewNopMetrics returns metrics bound to a throwaway registry, for tests.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
