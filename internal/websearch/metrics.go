package websearch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SearchesTotal counts provider attempts by outcome.
// Labels: provider, result (ok, empty, error, rate_limited)
var SearchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "recalld",
		Subsystem: "websearch",
		Name:      "searches_total",
		Help:      "Total number of external search attempts by provider and outcome",
	},
	[]string{"provider", "result"},
)
