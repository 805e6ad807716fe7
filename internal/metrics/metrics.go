// Package metrics exposes a Prometheus /metrics endpoint that mirrors
// the Status Aggregator's view of the system. These gauges are
// refreshed on-demand from the same store-derived snapshot the status
// endpoint returns; they are never an independent source of truth.
//
// Follows internal/scheduler/v2/observability/metrics.go's
// promauto.Factory registration pattern, scaled down from a
// many-metric scheduler-internal registry to the handful of gauges
// the job control plane's public status actually carries.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/integritystudio/alephauto/internal/status"
)

const (
	namespace = "alephauto"
	subsystem = "pipeline"
)

// Metrics holds the Prometheus collectors derived from status.Snapshot.
type Metrics struct {
	aggregator *status.Aggregator

	completedJobs *prometheus.GaugeVec
	failedJobs    *prometheus.GaugeVec
	queuedJobs    *prometheus.GaugeVec
	runningJobs   *prometheus.GaugeVec
	retryBucket   *prometheus.GaugeVec
}

// New registers the collectors against reg (nil uses the default
// registerer) and binds them to aggregator for refresh-on-scrape.
func New(reg prometheus.Registerer, aggregator *status.Aggregator) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		aggregator: aggregator,
		completedJobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "completed_jobs",
			Help: "Completed job count per pipeline, derived from the job store.",
		}, []string{"pipeline_id"}),
		failedJobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "failed_jobs",
			Help: "Failed job count per pipeline, derived from the job store.",
		}, []string{"pipeline_id"}),
		queuedJobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "queued_jobs",
			Help: "Queued job count per pipeline, derived from the job store.",
		}, []string{"pipeline_id"}),
		runningJobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "running_jobs",
			Help: "Running job count per pipeline, derived from the job store.",
		}, []string{"pipeline_id"}),
		retryBucket: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "retry", Name: "scheduled",
			Help: "Currently scheduled retries bucketed by attempt tier.",
		}, []string{"bucket"}),
	}
}

// Refresh recomputes every gauge from a fresh status.Snapshot. Intended
// to be called from the /metrics handler itself, immediately before
// Prometheus's registry gathers — never on a background timer, so the
// exposed values never drift from what /api/status would report.
func (m *Metrics) Refresh(ctx context.Context) error {
	snap, err := m.aggregator.Snapshot(ctx)
	if err != nil {
		return err
	}

	for _, p := range snap.Pipelines {
		m.completedJobs.WithLabelValues(p.ID).Set(float64(p.CompletedJobs))
		m.failedJobs.WithLabelValues(p.ID).Set(float64(p.FailedJobs))
		m.queuedJobs.WithLabelValues(p.ID).Set(float64(p.Queued))
		m.runningJobs.WithLabelValues(p.ID).Set(float64(p.Running))
	}

	m.retryBucket.WithLabelValues("attempt_1").Set(float64(snap.RetryMetrics.Attempt1))
	m.retryBucket.WithLabelValues("attempt_2").Set(float64(snap.RetryMetrics.Attempt2))
	m.retryBucket.WithLabelValues("attempt_3_plus").Set(float64(snap.RetryMetrics.Attempt3Plus))
	m.retryBucket.WithLabelValues("nearing_limit").Set(float64(snap.RetryMetrics.NearingLimit))
	return nil
}
