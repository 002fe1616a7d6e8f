// Package memory provides Prometheus metrics for the conversation cache.
package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheSize tracks the number of turns currently held.
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recalld",
			Subsystem: "memory",
			Name:      "cache_size",
			Help:      "Number of conversation turns currently cached",
		},
	)

	// EvictionsTotal counts turns dropped by optimization passes.
	EvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "memory",
			Name:      "evictions_total",
			Help:      "Total number of turns evicted by cache optimization",
		},
	)

	// FindsTotal counts lookups by resolution path.
	// Labels: path (lexical, vector, miss)
	FindsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "memory",
			Name:      "finds_total",
			Help:      "Total number of cache lookups by resolution path",
		},
		[]string{"path"},
	)

	// FeedbackTotal counts ratings applied to cached turns.
	// Labels: rating (1..5)
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "memory",
			Name:      "feedback_total",
			Help:      "Total number of feedback ratings applied to cached turns",
		},
		[]string{"rating"},
	)
)
