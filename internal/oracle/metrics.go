package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// classificationChunks counts chunk requests by result.
	// Labels: result (success, error)
	classificationChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendcat",
			Subsystem: "oracle",
			Name:      "classification_chunks_total",
			Help:      "Total number of oracle chunk requests",
		},
		[]string{"result"},
	)

	// classifiedNames counts names the oracle resolved.
	classifiedNames = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spendcat",
			Subsystem: "oracle",
			Name:      "classified_names_total",
			Help:      "Total number of names resolved by the oracle",
		},
	)
)
