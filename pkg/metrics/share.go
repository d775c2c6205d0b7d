package metrics

import "time"

// ShareMetrics provides observability for the content index's refresh,
// validation, hash-cache and partial-bundle-discovery subsystems. Pass nil
// to disable metrics collection with zero overhead.
type ShareMetrics interface {
	// ObserveRefresh records one completed refresh task.
	ObserveRefresh(refreshType string, duration time.Duration, filesIndexed, filesSkipped int)

	// RecordHashCacheResult records a hash-cache lookup outcome.
	RecordHashCacheResult(hit bool)

	// RecordValidationRejection records a file or directory rejected
	// during a refresh walk, tagged by reason.
	RecordValidationRejection(reason string)

	// SetIndexedFileCount reports the current total number of indexed
	// files across every share root.
	SetIndexedFileCount(count int)

	// RecordWatcherEvent records an fsnotify event promoted into a queued
	// refresh after the debounce window elapsed.
	RecordWatcherEvent(root string)

	// RecordPBDExchange records one partial-bundle-discovery message sent
	// or received, tagged by kind (e.g. "request", "piece_update",
	// "unsubscribe").
	RecordPBDExchange(kind string)
}

// NewShareMetrics creates a new Prometheus-backed ShareMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers should pass nil to pkg/share, which results in
// zero overhead.
func NewShareMetrics() ShareMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusShareMetrics()
}

var newPrometheusShareMetrics func() ShareMetrics

// RegisterShareMetricsConstructor registers the Prometheus share metrics
// constructor. Called by pkg/metrics/prometheus/share.go's init.
func RegisterShareMetricsConstructor(constructor func() ShareMetrics) {
	newPrometheusShareMetrics = constructor
}

// ObserveRefresh records one completed refresh task.
func ObserveRefresh(m ShareMetrics, refreshType string, duration time.Duration, filesIndexed, filesSkipped int) {
	if m != nil {
		m.ObserveRefresh(refreshType, duration, filesIndexed, filesSkipped)
	}
}

// ObserveHashCacheResult records a hash-cache lookup outcome.
func ObserveHashCacheResult(m ShareMetrics, hit bool) {
	if m != nil {
		m.RecordHashCacheResult(hit)
	}
}

// ObserveValidationRejection records a rejected refresh entry.
func ObserveValidationRejection(m ShareMetrics, reason string) {
	if m != nil {
		m.RecordValidationRejection(reason)
	}
}

// SetIndexedFileCount reports the current indexed file count.
func SetIndexedFileCount(m ShareMetrics, count int) {
	if m != nil {
		m.SetIndexedFileCount(count)
	}
}

// ObserveWatcherEvent records a debounced watcher-triggered refresh.
func ObserveWatcherEvent(m ShareMetrics, root string) {
	if m != nil {
		m.RecordWatcherEvent(root)
	}
}

// ObservePBDExchange records one PBD message sent or received.
func ObservePBDExchange(m ShareMetrics, kind string) {
	if m != nil {
		m.RecordPBDExchange(kind)
	}
}
