package embeddings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// generationTotal counts embedding generation calls.
	// Labels: kind (query, batch), result (success, error)
	generationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendcat",
			Subsystem: "embeddings",
			Name:      "generation_total",
			Help:      "Total number of embedding generation calls",
		},
		[]string{"kind", "result"},
	)

	// generatedTexts counts individual texts embedded in batch calls.
	generatedTexts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spendcat",
			Subsystem: "embeddings",
			Name:      "generated_texts_total",
			Help:      "Total number of texts submitted for embedding",
		},
	)
)

// Metrics records embedding generation outcomes.
type Metrics struct{}

// NewMetrics returns the embedding metrics recorder. The underlying
// collectors are package-level and registered once via promauto.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordQuery records a single-query generation outcome.
func (m *Metrics) RecordQuery(err error) {
	generationTotal.WithLabelValues("query", resultLabel(err)).Inc()
}

// RecordBatch records a batch generation outcome.
func (m *Metrics) RecordBatch(texts int, err error) {
	generationTotal.WithLabelValues("batch", resultLabel(err)).Inc()
	if err == nil {
		generatedTexts.Add(float64(texts))
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
