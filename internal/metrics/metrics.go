// Package metrics provides Prometheus instrumentation for the job queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Enqueue outcomes reported by JobsEnqueuedTotal.
const (
	OutcomePersisted = "persisted"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus metric collectors for the job queue.
type Metrics struct {
	JobsEnqueuedTotal  *prometheus.CounterVec
	StoreErrorsTotal   *prometheus.CounterVec
	JobsCompletedTotal prometheus.Counter
	JobsRetriedTotal   prometheus.Counter
	JobsDeadTotal      prometheus.Counter
	JobLatency         prometheus.Histogram
	PendingDepth       prometheus.Gauge
	ProcessingDepth    prometheus.Gauge
	DeadLetterDepth    prometheus.Gauge
	ProcessorBusy      prometheus.Gauge
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobsEnqueuedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Enqueue calls, partitioned by job type and outcome.",
		}, []string{"type", "outcome"}),

		StoreErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_store_errors_total",
			Help: "Backing store failures swallowed by the queue client, by operation.",
		}, []string{"op"}),

		JobsCompletedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of jobs completed successfully.",
		}),

		JobsRetriedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_retried_total",
			Help: "Total number of failed attempts that were requeued.",
		}),

		JobsDeadTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_dead_total",
			Help: "Total number of jobs moved to the dead letter set.",
		}),

		JobLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "queue_job_latency_seconds",
			Help:    "Handler execution time.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),

		PendingDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "queue_pending_depth",
			Help: "Jobs in the pending set at the last stats read.",
		}),

		ProcessingDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "queue_processing_depth",
			Help: "Jobs in the processing set at the last stats read.",
		}),

		DeadLetterDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "queue_dead_letter_depth",
			Help: "Jobs in the dead letter set at the last stats read.",
		}),

		ProcessorBusy: f.NewGauge(prometheus.GaugeOpts{
			Name: "queue_processor_busy",
			Help: "Whether the processor is currently running a batch (1=busy, 0=idle).",
		}),
	}
}

// NewUnregistered creates metrics on a private registry. Used where no
// scrape endpoint exists, so repeated construction never collides.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
