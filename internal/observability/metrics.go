package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// pipelineMetrics holds Prometheus metrics for the ingestion pipeline.
type pipelineMetrics struct {
	once sync.Once

	// Ingestion outcomes
	ingested   prometheus.Counter
	duplicates prometheus.Counter
	failures   prometheus.Counter
	chunks     prometheus.Counter

	// Search
	searches       prometheus.Counter
	searchFailures prometheus.Counter

	// Embedding batches
	embedBatches  prometheus.Counter
	embedVectors  prometheus.Counter
	embedFailures prometheus.Counter

	// Durations
	ingestDuration prometheus.Histogram
	searchDuration prometheus.Histogram
	embedDuration  prometheus.Histogram
}

var pipeline pipelineMetrics

func (m *pipelineMetrics) init() {
	m.once.Do(func() {
		m.ingested = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_ingest_ingested_total", Help: "Documents written to the index"})
		m.duplicates = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_ingest_duplicates_total", Help: "Documents skipped as already indexed"})
		m.failures = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_ingest_failures_total", Help: "Documents whose ingestion aborted with an error"})
		m.chunks = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_ingest_chunks_total", Help: "Chunks upserted into the index"})

		m.searches = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_search_total", Help: "Similarity searches served"})
		m.searchFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_search_failures_total", Help: "Similarity searches that failed"})

		m.embedBatches = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_embed_batches_total", Help: "Embedding batches sent to the provider"})
		m.embedVectors = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_embed_vectors_total", Help: "Vectors produced by the embedding provider"})
		m.embedFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "soliscan_embed_failures_total", Help: "Embedding provider errors"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "soliscan_ingest_seconds", Help: "Duration of document ingestion", Buckets: buckets})
		m.searchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "soliscan_search_seconds", Help: "Duration of similarity search", Buckets: buckets})
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "soliscan_embed_seconds", Help: "Duration of embedding batches", Buckets: buckets})

		prometheus.MustRegister(
			m.ingested, m.duplicates, m.failures, m.chunks,
			m.searches, m.searchFailures,
			m.embedBatches, m.embedVectors, m.embedFailures,
			m.ingestDuration, m.searchDuration, m.embedDuration,
		)
	})
}

// RecordIngested tracks a document written to the index.
func RecordIngested(chunks int, d time.Duration) {
	pipeline.init()
	pipeline.ingested.Inc()
	pipeline.chunks.Add(float64(chunks))
	pipeline.ingestDuration.Observe(d.Seconds())
}

// RecordDuplicate tracks a document skipped as already indexed.
func RecordDuplicate(d time.Duration) {
	pipeline.init()
	pipeline.duplicates.Inc()
	pipeline.ingestDuration.Observe(d.Seconds())
}

// RecordIngestFailure tracks an aborted ingestion.
func RecordIngestFailure() {
	pipeline.init()
	pipeline.failures.Inc()
}

// RecordSearch tracks a served similarity search.
func RecordSearch(d time.Duration) {
	pipeline.init()
	pipeline.searches.Inc()
	pipeline.searchDuration.Observe(d.Seconds())
}

// RecordSearchFailure tracks a failed similarity search.
func RecordSearchFailure() {
	pipeline.init()
	pipeline.searchFailures.Inc()
}

// RecordEmbedBatch tracks one embedding batch and the vectors it produced.
func RecordEmbedBatch(vectors int, d time.Duration) {
	pipeline.init()
	pipeline.embedBatches.Inc()
	pipeline.embedVectors.Add(float64(vectors))
	pipeline.embedDuration.Observe(d.Seconds())
}

// RecordEmbedFailure tracks an embedding provider error.
func RecordEmbedFailure() {
	pipeline.init()
	pipeline.embedFailures.Inc()
}
