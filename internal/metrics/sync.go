package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "indexsync"

// Sync engine Prometheus metrics.
var (
	DocumentWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_writes_total",
			Help:      "Documents queued for add or delete",
		},
		[]string{"index", "op"}, // "add" / "delete"
	)

	SyncErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Failures while projecting or writing documents",
		},
		[]string{"index", "stage"}, // "project" / "write" / "flush"
	)

	CascadeTargetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_targets_total",
			Help:      "Related entities reindexed by cascade",
		},
		[]string{"type"},
	)

	ReindexRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_runs_total",
			Help:      "Full reindex outcomes per logical index",
		},
		[]string{"index", "status"}, // "ok" / "failed"
	)

	ReindexDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reindex_duration_seconds",
			Help:      "Time to build and swap one index generation",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"index"},
	)

	ReindexDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reindex_documents",
			Help:      "Documents written by the last successful reindex",
		},
		[]string{"index"},
	)

	SearchFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_fetches_total",
			Help:      "Backend round-trips made by result sets",
		},
		[]string{"index"},
	)

	SearchMissingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_missing_entities_total",
			Help:      "Search hits whose entity no longer exists in the source",
		},
		[]string{"index"},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			httpInFlight,
			DocumentWritesTotal,
			SyncErrorsTotal,
			CascadeTargetsTotal,
			ReindexRunsTotal,
			ReindexDuration,
			ReindexDocuments,
			SearchFetchesTotal,
			SearchMissingTotal,
		)
	})
}
