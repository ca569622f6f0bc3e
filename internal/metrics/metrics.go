package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsProcessedTotal counts finished pipelines by terminal status.
	DocumentsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_documents_processed_total",
		Help: "Documents processed by the ingestion pipeline, by outcome.",
	}, []string{"status"})

	// StageDuration observes the wall time of each pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prism_pipeline_stage_duration_seconds",
		Help:    "Duration of ingestion pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})

	// EmbeddingRequestsTotal counts provider calls by provider and result.
	EmbeddingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_embedding_requests_total",
		Help: "Embedding provider requests.",
	}, []string{"provider", "status"})

	// EmbeddingCacheTotal counts query-embedding cache lookups by result.
	EmbeddingCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_embedding_cache_total",
		Help: "Embedding cache lookups (hit/miss).",
	}, []string{"result"})

	// ChunksIndexedTotal counts chunk rows written to the vector store.
	ChunksIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prism_chunks_indexed_total",
		Help: "Chunks embedded and persisted.",
	})

	// SearchRequestsTotal counts similarity searches by result.
	SearchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_search_requests_total",
		Help: "Similarity search requests.",
	}, []string{"status"})
)
