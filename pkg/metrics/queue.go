package metrics

import "time"

// QueueMetrics provides observability for the download queue and bundle
// engine. Pass nil to disable metrics collection with zero overhead.
type QueueMetrics interface {
	// RecordAdd records an item or bundle admitted to the queue at the
	// given priority (e.g. "NORMAL", "HIGHEST").
	RecordAdd(priority string)

	// RecordStatusTransition records a QueueItem moving from one lifecycle
	// status to another (e.g. "DOWNLOADED" -> "VALIDATION_RUNNING").
	RecordStatusTransition(from, to string)

	// RecordBytesDownloaded records bytes credited to a queue item's
	// downloaded segment set, whether from a live transfer or a recheck.
	RecordBytesDownloaded(bytes int64)

	// ObserveBundleCompletion records a bundle finishing validation, with
	// the time spent validating and the outcome.
	ObserveBundleCompletion(duration time.Duration, err error)

	// RecordSourceStatus records a source transitioning to status (e.g.
	// "NO_FILE", "TTH_INCONSISTENCY").
	RecordSourceStatus(status string)

	// SetQueueDepth reports the current number of queued items.
	SetQueueDepth(count int)

	// RecordValidationRejection records a completion-hook or built-in
	// validation rejecting a bundle, tagged by reason.
	RecordValidationRejection(reason string)
}

// NewQueueMetrics creates a new Prometheus-backed QueueMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers should pass nil to pkg/queue, which results in
// zero overhead.
func NewQueueMetrics() QueueMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusQueueMetrics()
}

// newPrometheusQueueMetrics is installed by pkg/metrics/prometheus/queue.go
// during package initialization; this indirection avoids an import cycle
// between this package and the Prometheus implementation.
var newPrometheusQueueMetrics func() QueueMetrics

// RegisterQueueMetricsConstructor registers the Prometheus queue metrics
// constructor. Called by pkg/metrics/prometheus/queue.go's init.
func RegisterQueueMetricsConstructor(constructor func() QueueMetrics) {
	newPrometheusQueueMetrics = constructor
}

// ObserveAdd records an item or bundle admitted to the queue.
func ObserveAdd(m QueueMetrics, priority string) {
	if m != nil {
		m.RecordAdd(priority)
	}
}

// ObserveStatusTransition records a QueueItem's lifecycle transition.
func ObserveStatusTransition(m QueueMetrics, from, to string) {
	if m != nil {
		m.RecordStatusTransition(from, to)
	}
}

// ObserveBytesDownloaded records bytes credited to a queue item.
func ObserveBytesDownloaded(m QueueMetrics, bytes int64) {
	if m != nil {
		m.RecordBytesDownloaded(bytes)
	}
}

// ObserveBundleCompletion records a bundle's validation outcome.
func ObserveBundleCompletion(m QueueMetrics, duration time.Duration, err error) {
	if m != nil {
		m.ObserveBundleCompletion(duration, err)
	}
}

// ObserveSourceStatus records a source status transition.
func ObserveSourceStatus(m QueueMetrics, status string) {
	if m != nil {
		m.RecordSourceStatus(status)
	}
}

// SetQueueDepth reports the current queue depth.
func SetQueueDepth(m QueueMetrics, count int) {
	if m != nil {
		m.SetQueueDepth(count)
	}
}

// ObserveBundleRejection records a bundle rejected during completion
// validation.
func ObserveBundleRejection(m QueueMetrics, reason string) {
	if m != nil {
		m.RecordValidationRejection(reason)
	}
}
