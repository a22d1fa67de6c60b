package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recipegen",
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Documents that finished an ingestion run, by final status.",
	}, []string{"status"})

	chunksStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recipegen",
		Subsystem: "ingest",
		Name:      "chunks_total",
		Help:      "Chunks handled during ingestion, by result.",
	}, []string{"result"})
)
