// Package metrics defines protocol-agnostic observability interfaces for
// the queue, upload, hub and share subsystems. Every interface accepts a
// nil receiver so callers that construct one with metrics disabled incur
// zero overhead: `if m != nil { m.Observe...(...) }` at every call site.
//
// Concrete Prometheus implementations live in pkg/metrics/prometheus and
// register themselves here via the RegisterXConstructor functions, which
// breaks the import cycle that would otherwise exist between this package
// (used by pkg/queue, pkg/upload, pkg/hub, pkg/share) and prometheus (which
// needs those packages' metric interfaces to implement).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and creates the process-wide
// Prometheus registry. Must be called before any NewXMetrics constructor
// if metrics are wanted; otherwise every constructor returns nil and every
// subsystem runs with zero metrics overhead.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the process-wide registry, creating an empty
// registry on first use; no Go or process collectors are registered.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}
