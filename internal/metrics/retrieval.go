package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval and fusion Prometheus metrics.
var (
	RetrievalFieldDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pestsearch",
			Name:      "retrieval_field_duration_seconds",
			Help:      "Per-field KNN search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"source", "category"},
	)

	RetrievalFieldFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pestsearch",
			Name:      "retrieval_field_failures_total",
			Help:      "Per-field searches degraded to empty hit lists",
		},
		[]string{"source", "category"},
	)

	FusionResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pestsearch",
			Name:      "fusion_results_count",
			Help:      "Fused result count per query after cutoff filtering",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
)

var registerRetrievalOnce sync.Once

// RegisterRetrievalMetrics registers retrieval collectors with the default registry.
func RegisterRetrievalMetrics() {
	registerRetrievalOnce.Do(func() {
		prometheus.MustRegister(RetrievalFieldDuration)
		prometheus.MustRegister(RetrievalFieldFailuresTotal)
		prometheus.MustRegister(FusionResultsCount)
	})
}
