package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dcwire/aircore/pkg/metrics"
)

func init() {
	metrics.RegisterShareMetricsConstructor(NewShareMetrics)
}

// shareMetrics is the Prometheus implementation of metrics.ShareMetrics.
type shareMetrics struct {
	refreshes          *prometheus.CounterVec
	refreshDuration    *prometheus.HistogramVec
	filesIndexed       *prometheus.CounterVec
	filesSkipped       *prometheus.CounterVec
	hashCacheHits      prometheus.Counter
	hashCacheMisses    prometheus.Counter
	validationRejected *prometheus.CounterVec
	indexedFileCount   prometheus.Gauge
	watcherEvents      *prometheus.CounterVec
	pbdExchanges       *prometheus.CounterVec
}

// NewShareMetrics creates a new Prometheus-backed ShareMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewShareMetrics() metrics.ShareMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &shareMetrics{
		refreshes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_share_refreshes_total",
				Help: "Total number of completed refresh tasks, by type",
			},
			[]string{"type"},
		),
		refreshDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "aircore_share_refresh_duration_milliseconds",
				Help: "Duration of a refresh task in milliseconds, by type",
				Buckets: []float64{
					10, 50, 100, 500, 1000, 5000, 30000, 120000,
				},
			},
			[]string{"type"},
		),
		filesIndexed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_share_files_indexed_total",
				Help: "Total number of files indexed across all refreshes, by refresh type",
			},
			[]string{"type"},
		),
		filesSkipped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_share_files_skipped_total",
				Help: "Total number of files skipped during a refresh, by refresh type",
			},
			[]string{"type"},
		),
		hashCacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "aircore_share_hash_cache_hits_total",
				Help: "Total number of hash-cache lookups that avoided a rehash",
			},
		),
		hashCacheMisses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "aircore_share_hash_cache_misses_total",
				Help: "Total number of hash-cache lookups that required a rehash",
			},
		),
		validationRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_share_validation_rejections_total",
				Help: "Total number of files or directories rejected during a refresh walk, by reason",
			},
			[]string{"reason"},
		),
		indexedFileCount: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "aircore_share_indexed_files",
				Help: "Current total number of indexed files across every share root",
			},
		),
		watcherEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_share_watcher_events_total",
				Help: "Total number of debounced incoming-directory refreshes triggered by the watcher",
			},
			[]string{"root"},
		),
		pbdExchanges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_share_pbd_exchanges_total",
				Help: "Total number of partial-bundle-discovery messages sent or received, by kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *shareMetrics) ObserveRefresh(refreshType string, duration time.Duration, filesIndexed, filesSkipped int) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(refreshType).Inc()
	m.refreshDuration.WithLabelValues(refreshType).Observe(duration.Seconds() * 1000)
	if filesIndexed > 0 {
		m.filesIndexed.WithLabelValues(refreshType).Add(float64(filesIndexed))
	}
	if filesSkipped > 0 {
		m.filesSkipped.WithLabelValues(refreshType).Add(float64(filesSkipped))
	}
}

func (m *shareMetrics) RecordHashCacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.hashCacheHits.Inc()
		return
	}
	m.hashCacheMisses.Inc()
}

func (m *shareMetrics) RecordValidationRejection(reason string) {
	if m == nil {
		return
	}
	m.validationRejected.WithLabelValues(reason).Inc()
}

func (m *shareMetrics) SetIndexedFileCount(count int) {
	if m == nil {
		return
	}
	m.indexedFileCount.Set(float64(count))
}

func (m *shareMetrics) RecordWatcherEvent(root string) {
	if m == nil {
		return
	}
	m.watcherEvents.WithLabelValues(root).Inc()
}

func (m *shareMetrics) RecordPBDExchange(kind string) {
	if m == nil {
		return
	}
	m.pbdExchanges.WithLabelValues(kind).Inc()
}
