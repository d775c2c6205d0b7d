package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dcwire/aircore/pkg/metrics"
)

func init() {
	metrics.RegisterHubMetricsConstructor(NewHubMetrics)
}

// hubMetrics is the Prometheus implementation of metrics.HubMetrics.
type hubMetrics struct {
	stateTransitions *prometheus.CounterVec
	searchesSent     *prometheus.CounterVec
	reconnects       *prometheus.CounterVec
	floodEvents      *prometheus.CounterVec
	usersTotal       *prometheus.GaugeVec
	usersActive      *prometheus.GaugeVec
	pendingSearches  *prometheus.GaugeVec
}

// NewHubMetrics creates a new Prometheus-backed HubMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHubMetrics() metrics.HubMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &hubMetrics{
		stateTransitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_hub_state_transitions_total",
				Help: "Total number of hub session state transitions",
			},
			[]string{"hub", "from", "to"},
		),
		searchesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_hub_searches_sent_total",
				Help: "Total number of search queries dispatched to a hub",
			},
			[]string{"hub"},
		),
		reconnects: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_hub_reconnects_total",
				Help: "Total number of reconnect attempts scheduled, by severity",
			},
			[]string{"hub", "severe"},
		),
		floodEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aircore_hub_flood_events_total",
				Help: "Total number of flood-detector flags raised, by kind",
			},
			[]string{"hub", "kind"},
		),
		usersTotal: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aircore_hub_users_total",
				Help: "Current total user count reported by a hub",
			},
			[]string{"hub"},
		),
		usersActive: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aircore_hub_users_active",
				Help: "Current user count reported by a hub as active; passive users are not told apart, so this equals the total",
			},
			[]string{"hub"},
		),
		pendingSearches: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aircore_hub_pending_searches",
				Help: "Current number of outgoing searches queued on a hub and not yet sent",
			},
			[]string{"hub"},
		),
	}
}

func (m *hubMetrics) RecordStateTransition(hubURL, from, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(hubURL, from, to).Inc()
}

func (m *hubMetrics) RecordSearchSent(hubURL string) {
	if m == nil {
		return
	}
	m.searchesSent.WithLabelValues(hubURL).Inc()
}

func (m *hubMetrics) RecordReconnect(hubURL string, severe bool) {
	if m == nil {
		return
	}
	severity := "normal"
	if severe {
		severity = "severe"
	}
	m.reconnects.WithLabelValues(hubURL, severity).Inc()
}

func (m *hubMetrics) RecordFloodEvent(hubURL, kind string) {
	if m == nil {
		return
	}
	m.floodEvents.WithLabelValues(hubURL, kind).Inc()
}

func (m *hubMetrics) SetUserCount(hubURL string, total, active int) {
	if m == nil {
		return
	}
	m.usersTotal.WithLabelValues(hubURL).Set(float64(total))
	m.usersActive.WithLabelValues(hubURL).Set(float64(active))
}

func (m *hubMetrics) SetPendingSearches(hubURL string, count int) {
	if m == nil {
		return
	}
	m.pendingSearches.WithLabelValues(hubURL).Set(float64(count))
}
