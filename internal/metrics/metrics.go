// Package metrics exposes prometheus counters for ingest and enrichment
// outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's counters. A single instance is shared by the
// ingest service, the orchestrator and the classification client.
type Metrics struct {
	IngestOutcomes *prometheus.CounterVec
	StageOutcomes  *prometheus.CounterVec
	ProviderCalls  *prometheus.CounterVec
	SweptJobs      prometheus.Counter
}

// Ingest outcome label values.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeUpdated   = "updated"
	OutcomeError     = "error"
)

// Stage outcome label values.
const (
	StageAdvanced    = "advanced"
	StageRejected    = "rejected"
	StageRetried     = "retried"
	StageExhausted   = "exhausted"
	StageStaleWrite  = "stale_write"
	StageSkippedGone = "skipped_gone"
)

// Provider call label values.
const (
	CallOK          = "ok"
	CallError       = "error"
	CallRateLimited = "rate_limited"
)

// New registers the engine counters on reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		IngestOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "archgee_ingest_records_total",
			Help: "Ingested records by source and outcome.",
		}, []string{"source", "outcome"}),
		StageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "archgee_enrichment_stage_total",
			Help: "Enrichment stage executions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "archgee_provider_calls_total",
			Help: "Classification provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		SweptJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "archgee_jobs_expired_total",
			Help: "Approved jobs transitioned to expired by the sweeper.",
		}),
	}
}
