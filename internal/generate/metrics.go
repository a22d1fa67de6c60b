package generate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recipesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recipegen",
	Subsystem: "generate",
	Name:      "recipes_total",
	Help:      "Recipe generation outcomes.",
}, []string{"outcome"})
