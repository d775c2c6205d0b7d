package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dcwire/aircore/pkg/metrics"
)

func init() {
	metrics.RegisterQueueMetricsConstructor(NewQueueMetrics)
}

// queueMetrics is the Prometheus implementation of metrics.QueueMetrics.
type queueMetrics struct {
	adds               *prometheus.CounterVec
	statusTransitions  *prometheus.CounterVec
	bytesDownloaded    prometheus.Counter
	bundleCompletions  *prometheus.CounterVec
	bundleDuration     prometheus.Histogram
	sourceStatus       *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	validationRejected *prometheus.CounterVec
}

// NewQueueMetrics creates a new Prometheus-backed QueueMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewQueueMetrics() metrics.QueueMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &queueMetrics{
		adds: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_queue_adds_total",
				Help: "Total number of items or bundles admitted to the download queue, by priority",
			},
			[]string{"priority"},
		),
		statusTransitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_queue_status_transitions_total",
				Help: "Total number of QueueItem lifecycle transitions",
			},
			[]string{"from", "to"},
		),
		bytesDownloaded: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "aircore_queue_bytes_downloaded_total",
				Help: "Total bytes credited to queue items as downloaded",
			},
		),
		bundleCompletions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_queue_bundle_completions_total",
				Help: "Total number of bundle validation completions by outcome",
			},
			[]string{"status"}, // "success", "error"
		),
		bundleDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "aircore_queue_bundle_validation_duration_milliseconds",
				Help: "Duration of bundle completion validation in milliseconds",
				Buckets: []float64{
					1, 5, 10, 50, 100, 500, 1000, 5000, 30000,
				},
			},
		),
		sourceStatus: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_queue_source_status_total",
				Help: "Total number of source status transitions, by resulting status",
			},
			[]string{"status"},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "aircore_queue_depth",
				Help: "Current number of items queued for download",
			},
		),
		validationRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_queue_validation_rejections_total",
				Help: "Total number of bundles rejected during completion validation, by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *queueMetrics) RecordAdd(priority string) {
	if m == nil {
		return
	}
	m.adds.WithLabelValues(priority).Inc()
}

func (m *queueMetrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

func (m *queueMetrics) RecordBytesDownloaded(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.bytesDownloaded.Add(float64(bytes))
}

func (m *queueMetrics) ObserveBundleCompletion(duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.bundleCompletions.WithLabelValues(status).Inc()
	m.bundleDuration.Observe(duration.Seconds() * 1000)
}

func (m *queueMetrics) RecordSourceStatus(status string) {
	if m == nil {
		return
	}
	m.sourceStatus.WithLabelValues(status).Inc()
}

func (m *queueMetrics) SetQueueDepth(count int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(count))
}

func (m *queueMetrics) RecordValidationRejection(reason string) {
	if m == nil {
		return
	}
	m.validationRejected.WithLabelValues(reason).Inc()
}
