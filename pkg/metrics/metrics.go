// Package metrics provides Prometheus metrics for the moss synchronizer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks synchronization runs by terminal status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moss",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of synchronization runs by status",
		},
		[]string{"status"},
	)

	// SyncRunDuration tracks full run duration in seconds
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "moss",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of synchronization runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// DocumentsLoaded tracks documents written per index
	DocumentsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moss",
			Subsystem: "sync",
			Name:      "documents_loaded_total",
			Help:      "Total number of documents upserted into the search index",
		},
		[]string{"index"},
	)

	// LoadDuration tracks bulk-load latency per index
	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "moss",
			Subsystem: "sync",
			Name:      "load_duration_seconds",
			Help:      "Duration of bulk loads into the search index in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		},
		[]string{"index"},
	)

	// ChangedRowsDetected tracks rows the change detector and enrichers found
	ChangedRowsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moss",
			Subsystem: "sync",
			Name:      "changed_rows_total",
			Help:      "Total number of changed rows detected by source class",
		},
		[]string{"class"},
	)
)
