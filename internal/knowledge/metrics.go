package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntryCount tracks the number of entries currently held.
	EntryCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recalld",
			Subsystem: "knowledge",
			Name:      "entry_count",
			Help:      "Number of knowledge entries currently stored",
		},
	)

	// QueriesTotal counts vector queries against the store.
	QueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "knowledge",
			Name:      "queries_total",
			Help:      "Total number of vector queries against the knowledge store",
		},
	)

	// CleanupRemovedTotal counts entries removed by retention cleanup.
	CleanupRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "knowledge",
			Name:      "cleanup_removed_total",
			Help:      "Total number of entries removed by retention cleanup",
		},
	)
)
