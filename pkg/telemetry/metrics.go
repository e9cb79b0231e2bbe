// Package telemetry exposes the indexing pipeline's throughput and latency
// as Prometheus metrics, plus a small in-process summary used for the
// orchestrator's end-of-run log line.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Metrics holds the Prometheus collectors the indexing pipeline reports to,
// plus a mutex-protected running summary for the current process, mirroring
// the same "accumulate, then report" shape regardless of which sink is
// asking (Prometheus scrape vs. a one-off CLI summary).
type Metrics struct {
	mu sync.RWMutex

	FilesIndexed      prometheus.Counter
	ChunksEmbedded    prometheus.Counter
	EmbeddingRequests *prometheus.CounterVec // labeled by outcome: success, retried, failed
	EmbeddingLatency  prometheus.Histogram
	UpsertLatency     prometheus.Histogram
	IndexingRunsTotal *prometheus.CounterVec // labeled by mode and outcome
	CancellationsTotal prometheus.Counter

	runFilesIndexed   int64
	runChunksEmbedded int64
	runStartedAt      time.Time

	logger zerolog.Logger
}

// New registers the pipeline's collectors with reg and returns a Metrics
// ready to record against. Passing a fresh prometheus.NewRegistry() is
// standard in tests; a nil reg skips registration, which is what
// cmd/indexer passes.
func New(reg prometheus.Registerer, logger zerolog.Logger) *Metrics {
	m := &Metrics{
		FilesIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexcore_files_indexed_total",
			Help: "Total number of files committed to the vector store.",
		}),
		ChunksEmbedded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexcore_chunks_embedded_total",
			Help: "Total number of chunks successfully embedded.",
		}),
		EmbeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexcore_embedding_requests_total",
			Help: "Embedding provider calls by outcome.",
		}, []string{"outcome"}),
		EmbeddingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexcore_embedding_latency_seconds",
			Help:    "Latency of a single embedding batch call.",
			Buckets: prometheus.DefBuckets,
		}),
		UpsertLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexcore_upsert_latency_seconds",
			Help:    "Latency of a single vector store upsert call.",
			Buckets: prometheus.DefBuckets,
		}),
		IndexingRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexcore_indexing_runs_total",
			Help: "Completed indexing runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		CancellationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexcore_cancellations_total",
			Help: "Total number of indexing runs stopped by cancellation.",
		}),
		logger: logger,
	}

	if reg != nil {
		reg.MustRegister(
			m.FilesIndexed, m.ChunksEmbedded, m.EmbeddingRequests,
			m.EmbeddingLatency, m.UpsertLatency, m.IndexingRunsTotal, m.CancellationsTotal,
		)
	}
	return m
}

// StartRun resets the per-run summary counters; call once at the beginning
// of an indexing operation.
func (m *Metrics) StartRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runFilesIndexed = 0
	m.runChunksEmbedded = 0
	m.runStartedAt = time.Now()
}

// RecordFileIndexed increments both the Prometheus counter and the current
// run's summary after one file's chunks are committed atomically.
func (m *Metrics) RecordFileIndexed(chunkCount int) {
	m.FilesIndexed.Inc()
	m.ChunksEmbedded.Add(float64(chunkCount))

	m.mu.Lock()
	m.runFilesIndexed++
	m.runChunksEmbedded += int64(chunkCount)
	m.mu.Unlock()
}

// RecordEmbeddingCall reports one embedding provider call's outcome and
// latency. outcome is "success", "retried", or "failed".
func (m *Metrics) RecordEmbeddingCall(outcome string, latency time.Duration) {
	m.EmbeddingRequests.WithLabelValues(outcome).Inc()
	m.EmbeddingLatency.Observe(latency.Seconds())
}

// RecordUpsert reports one vector store upsert call's latency.
func (m *Metrics) RecordUpsert(latency time.Duration) {
	m.UpsertLatency.Observe(latency.Seconds())
}

// RecordRunFinished reports the terminal outcome of an indexing run
// ("completed", "cancelled", "failed") and logs the run summary.
func (m *Metrics) RecordRunFinished(mode, outcome string) {
	m.IndexingRunsTotal.WithLabelValues(mode, outcome).Inc()
	if outcome == "cancelled" {
		m.CancellationsTotal.Inc()
	}

	summary := m.RunSummary()
	m.logger.Info().
		Str("mode", mode).
		Str("outcome", outcome).
		Int64("files_indexed", summary.FilesIndexed).
		Int64("chunks_embedded", summary.ChunksEmbedded).
		Dur("duration", summary.Duration).
		Msg("indexing run finished")
}

// RunSummary is a point-in-time snapshot of the current run's counters.
type RunSummary struct {
	FilesIndexed   int64
	ChunksEmbedded int64
	Duration       time.Duration
}

// RunSummary returns the current run's accumulated counters.
func (m *Metrics) RunSummary() RunSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return RunSummary{
		FilesIndexed:   m.runFilesIndexed,
		ChunksEmbedded: m.runChunksEmbedded,
		Duration:       time.Since(m.runStartedAt),
	}
}
