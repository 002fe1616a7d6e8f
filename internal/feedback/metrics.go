package feedback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RatingsTotal counts ratings processed.
	// Labels: rating (1..5)
	RatingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "feedback",
			Name:      "ratings_total",
			Help:      "Total number of feedback ratings processed",
		},
		[]string{"rating"},
	)

	// PromotionsTotal counts turns promoted into the knowledge store.
	PromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "feedback",
			Name:      "promotions_total",
			Help:      "Total number of turns promoted into the knowledge store",
		},
	)

	// SuppressionsTotal counts answers added to the suppression ledger.
	SuppressionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "feedback",
			Name:      "suppressions_total",
			Help:      "Total number of answers added to the suppression ledger",
		},
	)
)
