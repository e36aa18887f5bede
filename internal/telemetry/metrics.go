package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "audit_risk"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	recalculations  *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	batchAreas      *prometheus.CounterVec
	weightsVersion  prometheus.Gauge
	weightWarnings  prometheus.Counter
	eventFailures   prometheus.Counter
	lockWaitSeconds prometheus.Histogram
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		recalculations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculations_total",
			Help:      "Recalculations by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recalculation_duration_seconds",
			Help:      "Time spent in one area recalculation, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"trigger"}),
		batchAreas: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_areas_total",
			Help:      "Areas processed by bulk recomputation by status.",
		}, []string{"status"}),
		weightsVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weights_version",
			Help:      "Version of the active weight snapshot.",
		}),
		weightWarnings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weight_configuration_warnings_total",
			Help:      "Configuration warnings raised while loading weights.",
		}),
		eventFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Recalculation events that could not be published.",
		}),
		lockWaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "area_lock_wait_seconds",
			Help:      "Time spent waiting for the per-area lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

// ObserveRecalculation records one finished recalculation
func (m *Metrics) ObserveRecalculation(trigger, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.recalculations.WithLabelValues(trigger, outcome).Inc()
	m.duration.WithLabelValues(trigger).Observe(d.Seconds())
}

// ObserveBatchArea records the status of one area in a bulk run
func (m *Metrics) ObserveBatchArea(status string) {
	if m == nil {
		return
	}
	m.batchAreas.WithLabelValues(status).Inc()
}

// ObserveLockWait records time spent acquiring an area lock
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitSeconds.Observe(d.Seconds())
}

// EventPublishFailed counts a dropped event
func (m *Metrics) EventPublishFailed() {
	if m == nil {
		return
	}
	m.eventFailures.Inc()
}

// WeightsLoaded implements scoring.Observer
func (m *Metrics) WeightsLoaded(version uint64, warnings int) {
	if m == nil {
		return
	}
	m.weightsVersion.Set(float64(version))
	m.weightWarnings.Add(float64(warnings))
}
