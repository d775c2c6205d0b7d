package metrics

import "time"

// UploadMetrics provides observability for the upload slot manager. Pass
// nil to disable metrics collection with zero overhead.
type UploadMetrics interface {
	// RecordSlotGranted records a slot handed out, tagged by the kind
	// granted (e.g. "standard", "small_file", "mcn", "extra").
	RecordSlotGranted(tag string)

	// RecordSlotRejected records an upload request turned away, tagged by
	// reason (e.g. "no_slots", "hook_rejected", "delay_list").
	RecordSlotRejected(reason string)

	// ObserveUpload records a completed upload's size and duration.
	ObserveUpload(bytes int64, duration time.Duration)

	// RecordUploadFailed records an upload that was aborted mid-transfer.
	RecordUploadFailed(reason string)

	// SetActiveSlots reports the current number of occupied slots of tag.
	SetActiveSlots(tag string, count int)

	// SetWaitingQueueLen reports the current upload waiting-queue length.
	SetWaitingQueueLen(count int)
}

// NewUploadMetrics creates a new Prometheus-backed UploadMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers should pass nil to pkg/upload, which results in
// zero overhead.
func NewUploadMetrics() UploadMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusUploadMetrics()
}

var newPrometheusUploadMetrics func() UploadMetrics

// RegisterUploadMetricsConstructor registers the Prometheus upload metrics
// constructor. Called by pkg/metrics/prometheus/upload.go's init.
func RegisterUploadMetricsConstructor(constructor func() UploadMetrics) {
	newPrometheusUploadMetrics = constructor
}

// ObserveSlotGranted records a slot handed out.
func ObserveSlotGranted(m UploadMetrics, tag string) {
	if m != nil {
		m.RecordSlotGranted(tag)
	}
}

// ObserveSlotRejected records an upload request turned away.
func ObserveSlotRejected(m UploadMetrics, reason string) {
	if m != nil {
		m.RecordSlotRejected(reason)
	}
}

// ObserveUpload records a completed upload.
func ObserveUpload(m UploadMetrics, bytes int64, duration time.Duration) {
	if m != nil {
		m.ObserveUpload(bytes, duration)
	}
}

// ObserveUploadFailed records an aborted upload.
func ObserveUploadFailed(m UploadMetrics, reason string) {
	if m != nil {
		m.RecordUploadFailed(reason)
	}
}

// SetActiveSlots reports the current occupied-slot count for tag.
func SetActiveSlots(m UploadMetrics, tag string, count int) {
	if m != nil {
		m.SetActiveSlots(tag, count)
	}
}

// SetWaitingQueueLen reports the current upload waiting-queue length.
func SetWaitingQueueLen(m UploadMetrics, count int) {
	if m != nil {
		m.SetWaitingQueueLen(count)
	}
}
