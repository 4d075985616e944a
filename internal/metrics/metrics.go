// Package metrics holds the Prometheus collectors for track store
// operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "codematch"

// Store groups the collectors recorded by the track store. A Store built
// with a nil registerer is fully functional but not exported anywhere.
type Store struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CodesIngested     *prometheus.CounterVec
	MatchCandidates   prometheus.Histogram
}

// NewStore creates the store collectors and registers them with reg.
func NewStore(reg prometheus.Registerer) *Store {
	f := promauto.With(reg)
	return &Store{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of track store operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Track store operation duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		CodesIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "codes_ingested_total",
				Help:      "Fingerprint codes written to the codes table",
			},
			[]string{"strategy"},
		),
		MatchCandidates: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "match_candidates",
				Help:      "Number of candidate tracks returned per match query",
				Buckets:   prometheus.LinearBuckets(0, 5, 11),
			},
		),
	}
}

// Observe records one finished operation.
func (m *Store) Observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
