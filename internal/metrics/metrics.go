// Package metrics exposes the Prometheus instrumentation for the
// optimization pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	ScansTotal           prometheus.Counter
	ScanErrorsTotal      prometheus.Counter
	RecommendationsTotal *prometheus.CounterVec
	ScanDuration         prometheus.Histogram

	ExecutionsTotal *prometheus.CounterVec
	ActionsTotal    *prometheus.CounterVec
	ExecuteDuration prometheus.Histogram

	RollbacksTotal *prometheus.CounterVec

	EstimatedMonthlySavings prometheus.Gauge
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "costmgr",
			Name:      "scans_total",
			Help:      "Completed scan passes.",
		}),
		ScanErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "costmgr",
			Name:      "scan_errors_total",
			Help:      "Per-bucket errors captured during scans.",
		}),
		RecommendationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costmgr",
			Name:      "recommendations_total",
			Help:      "Findings emitted by scans.",
		}, []string{"type"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "costmgr",
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock duration of scan passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costmgr",
			Name:      "executions_total",
			Help:      "Execution batches by mode.",
		}, []string{"mode"}),
		ActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costmgr",
			Name:      "actions_total",
			Help:      "Attempted actions by outcome.",
		}, []string{"status"}),
		ExecuteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "costmgr",
			Name:      "execute_duration_seconds",
			Help:      "Wall-clock duration of execution batches.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costmgr",
			Name:      "rollbacks_total",
			Help:      "Rollback attempts by outcome.",
		}, []string{"status"}),
		EstimatedMonthlySavings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "costmgr",
			Name:      "estimated_monthly_savings_dollars",
			Help:      "Estimated monthly savings of the latest scan.",
		}),
	}
}
