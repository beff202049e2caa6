// Package metrics holds the Prometheus collectors for resolution and for the
// metadata server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every pinresolve collector.
var Registry = prometheus.NewRegistry()

var (
	ResolutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinresolve_resolution_total",
			Help: "Number of resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	ResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pinresolve_resolution_duration_seconds",
			Help:    "Time taken to resolve a requirement set.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResolvedPackages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pinresolve_resolved_packages",
			Help: "Number of pinned packages in the last successful resolution.",
		},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinresolve_conflicts_total",
			Help: "Number of recorded pinning conflicts by kind.",
		},
		[]string{"kind"},
	)

	MetadataLookupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pinresolve_metadata_lookups_total",
			Help: "Number of dependency lookups made against the metadata provider.",
		},
	)

	MetadataRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinresolve_metadata_server_requests_total",
			Help: "Number of metadata server requests by gRPC status code.",
		},
		[]string{"code"},
	)
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func init() {
	Registry.MustRegister(
		ResolutionTotal,
		ResolutionDuration,
		ResolvedPackages,
		ConflictsTotal,
		MetadataLookupsTotal,
		MetadataRequestsTotal,
	)
}

// WriteTextfile writes the current values in the node exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
