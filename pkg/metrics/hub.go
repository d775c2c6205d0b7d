package metrics

// HubMetrics provides observability for hub connection sessions. Pass nil
// to disable metrics collection with zero overhead.
type HubMetrics interface {
	// RecordStateTransition records a hub session's State machine moving
	// from one state to another (e.g. "CONNECTING" -> "NORMAL").
	RecordStateTransition(hubURL, from, to string)

	// RecordSearchSent records a search query dispatched to a hub.
	RecordSearchSent(hubURL string)

	// RecordReconnect records a reconnect attempt being scheduled, tagged
	// by whether it followed a severe-flood disconnect.
	RecordReconnect(hubURL string, severe bool)

	// RecordFloodEvent records the flood detector flagging a peer or
	// message kind as abusive.
	RecordFloodEvent(hubURL, kind string)

	// SetUserCount reports a hub's current total and active user counts.
	// Sessions do not tell passive users apart and report the total as
	// active.
	SetUserCount(hubURL string, total, active int)

	// SetPendingSearches reports the number of outgoing searches queued
	// on a hub and not yet sent.
	SetPendingSearches(hubURL string, count int)
}

// NewHubMetrics creates a new Prometheus-backed HubMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers should pass nil to pkg/hub, which results in
// zero overhead.
func NewHubMetrics() HubMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusHubMetrics()
}

var newPrometheusHubMetrics func() HubMetrics

// RegisterHubMetricsConstructor registers the Prometheus hub metrics
// constructor. Called by pkg/metrics/prometheus/hub.go's init.
func RegisterHubMetricsConstructor(constructor func() HubMetrics) {
	newPrometheusHubMetrics = constructor
}

// ObserveStateTransition records a hub session's state change.
func ObserveStateTransition(m HubMetrics, hubURL, from, to string) {
	if m != nil {
		m.RecordStateTransition(hubURL, from, to)
	}
}

// ObserveSearchSent records a dispatched search query.
func ObserveSearchSent(m HubMetrics, hubURL string) {
	if m != nil {
		m.RecordSearchSent(hubURL)
	}
}

// ObserveReconnect records a scheduled reconnect attempt.
func ObserveReconnect(m HubMetrics, hubURL string, severe bool) {
	if m != nil {
		m.RecordReconnect(hubURL, severe)
	}
}

// ObserveFloodEvent records a flood-detector flag.
func ObserveFloodEvent(m HubMetrics, hubURL, kind string) {
	if m != nil {
		m.RecordFloodEvent(hubURL, kind)
	}
}

// SetUserCount reports a hub's current user counts.
func SetUserCount(m HubMetrics, hubURL string, total, active int) {
	if m != nil {
		m.SetUserCount(hubURL, total, active)
	}
}

// SetPendingSearches reports a hub's outstanding search count.
func SetPendingSearches(m HubMetrics, hubURL string, count int) {
	if m != nil {
		m.SetPendingSearches(hubURL, count)
	}
}
