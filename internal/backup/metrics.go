package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsTotal counts snapshot attempts.
	// Labels: result (ok, error)
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "backup",
			Name:      "snapshots_total",
			Help:      "Total number of snapshot attempts",
		},
		[]string{"result"},
	)

	// RestoresTotal counts successful restores.
	RestoresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "backup",
			Name:      "restores_total",
			Help:      "Total number of successful snapshot restores",
		},
	)

	// PrunedTotal counts snapshots removed by retention pruning.
	PrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "backup",
			Name:      "pruned_total",
			Help:      "Total number of snapshots removed by retention pruning",
		},
	)
)
