package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var searchesByMethod = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recipegen",
	Subsystem: "search",
	Name:      "results_total",
	Help:      "Search results returned, by retrieval method.",
}, []string{"method"})
