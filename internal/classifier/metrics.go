package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tierHits counts classifications by resolving tier.
	// Labels: tier (exact, partial, vector_best, vector_group, rules,
	// bulk_cache, unclassified)
	tierHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendcat",
			Subsystem: "classifier",
			Name:      "tier_hits_total",
			Help:      "Total classifications by resolving tier",
		},
		[]string{"tier"},
	)

	// propagationTotal counts neighbor records changed by propagation.
	propagationTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spendcat",
			Subsystem: "classifier",
			Name:      "propagated_total",
			Help:      "Total neighbor records changed by propagation",
		},
	)

	// bulkRounds counts completed bulk classification rounds.
	bulkRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spendcat",
			Subsystem: "classifier",
			Name:      "bulk_rounds_total",
			Help:      "Total completed bulk classification rounds",
		},
	)
)
