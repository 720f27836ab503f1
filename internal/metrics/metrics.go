// Package metrics holds the prometheus collectors for the session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics groups the collectors so each process (and each test) can own a registry.
type Metrics struct {
	Registry        *prometheus.Registry
	SessionsCreated prometheus.Counter
	SessionsRemoved prometheus.Counter
	Logins          *prometheus.CounterVec   // outcome
	Refreshes       *prometheus.CounterVec   // trigger, outcome
	Fetches         *prometheus.CounterVec   // resource, outcome
	Posts           *prometheus.CounterVec   // media, outcome
	BackendLatency  *prometheus.HistogramVec // operation
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poster",
			Name:      "sessions_created_total",
			Help:      "Sessions created across all workspaces.",
		}),
		SessionsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poster",
			Name:      "sessions_removed_total",
			Help:      "Sessions removed across all workspaces.",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poster",
			Name:      "redirect_completions_total",
			Help:      "OAuth redirect completions by outcome.",
		}, []string{"outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poster",
			Name:      "token_refreshes_total",
			Help:      "Token refresh attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poster",
			Name:      "fetches_total",
			Help:      "Profile and pages fetches by outcome.",
		}, []string{"resource", "outcome"}),
		Posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poster",
			Name:      "posts_total",
			Help:      "Post submissions by media kind and outcome.",
		}, []string{"media", "outcome"}),
		BackendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "poster",
			Name:      "backend_request_seconds",
			Help:      "Latency of calls to the backend broker.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	m.Registry.MustRegister(
		m.SessionsCreated,
		m.SessionsRemoved,
		m.Logins,
		m.Refreshes,
		m.Fetches,
		m.Posts,
		m.BackendLatency,
	)
	return m
}

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
