package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dcwire/aircore/pkg/metrics"
)

func init() {
	metrics.RegisterUploadMetricsConstructor(NewUploadMetrics)
}

// uploadMetrics is the Prometheus implementation of metrics.UploadMetrics.
type uploadMetrics struct {
	slotsGranted   *prometheus.CounterVec
	slotsRejected  *prometheus.CounterVec
	uploadBytes    prometheus.Histogram
	uploadDuration prometheus.Histogram
	uploadsFailed  *prometheus.CounterVec
	activeSlots    *prometheus.GaugeVec
	waitingQueue   prometheus.Gauge
}

// NewUploadMetrics creates a new Prometheus-backed UploadMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewUploadMetrics() metrics.UploadMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &uploadMetrics{
		slotsGranted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_upload_slots_granted_total",
				Help: "Total number of upload slots granted, by slot tag",
			},
			[]string{"tag"},
		),
		slotsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_upload_slots_rejected_total",
				Help: "Total number of upload requests turned away, by reason",
			},
			[]string{"reason"},
		),
		uploadBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "aircore_upload_bytes",
				Help: "Distribution of bytes sent per completed upload",
				Buckets: []float64{
					4096, 65536, 1048576, 10485760, 104857600, 1073741824,
				},
			},
		),
		uploadDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "aircore_upload_duration_milliseconds",
				Help: "Duration of completed uploads in milliseconds",
				Buckets: []float64{
					10, 100, 1000, 10000, 60000, 300000,
				},
			},
		),
		uploadsFailed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_upload_failures_total",
				Help: "Total number of uploads aborted mid-transfer, by reason",
			},
			[]string{"reason"},
		),
		activeSlots: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aircore_upload_active_slots",
				Help: "Current number of occupied upload slots, by slot tag",
			},
			[]string{"tag"},
		),
		waitingQueue: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "aircore_upload_waiting_queue_length",
				Help: "Current length of the upload waiting queue",
			},
		),
	}
}

func (m *uploadMetrics) RecordSlotGranted(tag string) {
	if m == nil {
		return
	}
	m.slotsGranted.WithLabelValues(tag).Inc()
}

func (m *uploadMetrics) RecordSlotRejected(reason string) {
	if m == nil {
		return
	}
	m.slotsRejected.WithLabelValues(reason).Inc()
}

func (m *uploadMetrics) ObserveUpload(bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	if bytes > 0 {
		m.uploadBytes.Observe(float64(bytes))
	}
	m.uploadDuration.Observe(duration.Seconds() * 1000)
}

func (m *uploadMetrics) RecordUploadFailed(reason string) {
	if m == nil {
		return
	}
	m.uploadsFailed.WithLabelValues(reason).Inc()
}

func (m *uploadMetrics) SetActiveSlots(tag string, count int) {
	if m == nil {
		return
	}
	m.activeSlots.WithLabelValues(tag).Set(float64(count))
}

func (m *uploadMetrics) SetWaitingQueueLen(count int) {
	if m == nil {
		return
	}
	m.waitingQueue.Set(float64(count))
}
