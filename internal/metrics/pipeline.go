package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics for ingestion and matching.
var (
	IngestOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapmatch",
			Name:      "ingest_outcomes_total",
			Help:      "Ingestion outcomes by status and failure reason",
		},
		[]string{"status", "reason"},
	)

	IngestBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "snapmatch",
			Name:      "ingest_batch_size",
			Help:      "Number of images per ingestion batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	MatchResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapmatch",
			Name:      "match_results_total",
			Help:      "Title match results by kind (hit, miss, error)",
		},
		[]string{"result"},
	)

	BlobWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "snapmatch",
			Name:      "blob_write_duration_seconds",
			Help:      "Blob store write duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestOutcomesTotal)
	prometheus.MustRegister(IngestBatchSize)
	prometheus.MustRegister(MatchResultsTotal)
	prometheus.MustRegister(BlobWriteDuration)
	pipelineMetricsRegistered = true
}
