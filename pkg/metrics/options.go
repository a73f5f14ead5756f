// Package metrics provides Prometheus metrics for the foldboard orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRequestBuckets cover HTTP handlers and scheduler status queries.
// The upper end matches the default status timeout so slow sacct calls land
// in a real bucket instead of +Inf.
var DefaultRequestBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30} //nolint:gochecknoglobals // bucket layout

// DefaultPassBuckets cover orchestration passes, structure evaluations and
// leaderboard rebuilds, which run from milliseconds to several minutes.
var DefaultPassBuckets = []float64{.05, .25, 1, 5, 15, 30, 60, 120, 300, 600, 900} //nolint:gochecknoglobals // bucket layout

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace replaces the "foldboard" prefix.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem replaces the "orchestrator" subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithRequestBuckets sets the buckets of HTTP and scheduler latency histograms.
func WithRequestBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.requestBuckets = buckets
		}
	}
}

// WithPassBuckets sets the buckets of pass, evaluation, worker and leaderboard histograms.
func WithPassBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.passBuckets = buckets
		}
	}
}

// WithDeployment labels every series with the competition deployment, so
// several orchestrators can share one Prometheus.
func WithDeployment(name string) Option {
	return func(m *Manager) {
		if name == "" {
			return
		}
		if m.constLabels == nil {
			m.constLabels = prometheus.Labels{}
		}
		m.constLabels["deployment"] = name
	}
}

// WithPrometheusRegistry sets a custom Prometheus registry.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
