// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// namespace for use with metric names.
const namespace = "objidx"

// Ingest outcomes.
const (
	OutcomeNew               = "new"
	OutcomeDuplicate         = "duplicate"
	OutcomeSizeMismatch      = "size_mismatch"
	OutcomeConflict          = "conflict"
	OutcomeDeleted           = "deleted"
	OutcomeInconsistentFlags = "inconsistent_flags"
	OutcomeInvalid           = "invalid"
	OutcomeError             = "error"

	OutcomeCompleted        = "completed"
	OutcomeAlreadyCompleted = "already_completed"
	OutcomeNotFound         = "not_found"
	OutcomeBlobMismatch     = "blob_mismatch"
)

var (
	// IngestRequestsTotal counts ingestion requests, partitioned by outcome.
	IngestRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_requests_total",
			Help:      "Total number of ingestion requests, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	// CompletionsTotal counts completion calls, partitioned by outcome.
	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Total number of completion calls, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	// PresignTotal counts presigned URLs handed out, partitioned by HTTP
	// method and whether the URL came from the cache.
	PresignTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presign_total",
			Help:      "Total number of presigned URLs returned, partitioned by method and cache result.",
		},
		[]string{"method", "cache"},
	)
)

func init() {
	prometheus.MustRegister(IngestRequestsTotal, CompletionsTotal, PresignTotal)
}
