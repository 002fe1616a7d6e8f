package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts answered queries.
	// Labels: state (answer_from_local, answer_from_web, answer_from_hybrid, fallback)
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "orchestrator",
			Name:      "queries_total",
			Help:      "Total number of queries answered, by pipeline state",
		},
		[]string{"state"},
	)

	// QueryDuration observes end-to-end turn latency.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "recalld",
			Subsystem: "orchestrator",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query handling latency",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// WebLearnedTotal counts knowledge entries learned from web results.
	WebLearnedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "orchestrator",
			Name:      "web_learned_total",
			Help:      "Total number of knowledge entries learned from web search results",
		},
	)

	// SuppressedTotal counts candidate answers withheld by the ledger.
	SuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "orchestrator",
			Name:      "suppressed_answers_total",
			Help:      "Total number of candidate answers withheld by the suppression ledger",
		},
	)
)
