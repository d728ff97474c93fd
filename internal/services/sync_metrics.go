package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics exposes sync pipeline counters on a dedicated registry
type SyncMetrics struct {
	Registry *prometheus.Registry

	runs        *prometheus.CounterVec
	records     *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	duration    prometheus.Histogram
	inFlight    prometheus.Gauge
	lockDenials prometheus.Counter
}

// NewSyncMetrics creates the sync metrics on a fresh registry
func NewSyncMetrics() *SyncMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &SyncMetrics{
		Registry: registry,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "integration_sync_runs_total",
			Help: "Total number of sync runs by outcome",
		}, []string{"status"}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "integration_sync_records_total",
			Help: "Total number of records processed by outcome",
		}, []string{"outcome"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "integration_sync_conflicts_total",
			Help: "Total number of field conflicts by resolution strategy",
		}, []string{"strategy", "resolved"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "integration_sync_duration_seconds",
			Help:    "Duration of sync runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "integration_syncs_in_flight",
			Help: "Number of sync runs currently executing",
		}),
		lockDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "integration_sync_lock_denied_total",
			Help: "Sync requests rejected because the integration was already syncing",
		}),
	}
}

// ObserveRun records the outcome of a finished run; result may be partial or nil
func (m *SyncMetrics) ObserveRun(status, strategy string, result *BatchResult) {
	m.runs.WithLabelValues(status).Inc()
	if result == nil {
		return
	}

	m.records.WithLabelValues("succeeded").Add(float64(result.SuccessfulRecords))
	m.records.WithLabelValues("failed").Add(float64(result.FailedRecords))
	m.conflicts.WithLabelValues(strategy, "true").Add(float64(result.ResolvedConflicts))
	m.conflicts.WithLabelValues(strategy, "false").Add(float64(result.Conflicts - result.ResolvedConflicts))
	m.duration.Observe(float64(result.ProcessingTimeMs) / 1000)
}

func (m *SyncMetrics) syncStarted() { m.inFlight.Inc() }
func (m *SyncMetrics) syncFinished() { m.inFlight.Dec() }
func (m *SyncMetrics) lockDenied() { m.lockDenials.Inc() }
