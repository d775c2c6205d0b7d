package metrics

import (
	"errors"
	"testing"
	"time"
)

// Every constructor must return nil until InitRegistry has been called, and
// every free function must tolerate a nil metrics value without panicking.
// These are the two invariants every subsystem's wiring code depends on.

func TestConstructorsReturnNilWhenDisabled(t *testing.T) {
	if NewQueueMetrics() != nil {
		t.Fatalf("expected NewQueueMetrics to return nil before InitRegistry")
	}
	if NewUploadMetrics() != nil {
		t.Fatalf("expected NewUploadMetrics to return nil before InitRegistry")
	}
	if NewHubMetrics() != nil {
		t.Fatalf("expected NewHubMetrics to return nil before InitRegistry")
	}
	if NewShareMetrics() != nil {
		t.Fatalf("expected NewShareMetrics to return nil before InitRegistry")
	}
}

func TestQueueFreeFunctionsToleratesNil(t *testing.T) {
	ObserveAdd(nil, "NORMAL")
	ObserveStatusTransition(nil, "NEW", "QUEUED")
	ObserveBytesDownloaded(nil, 1024)
	ObserveBundleCompletion(nil, time.Millisecond, errors.New("boom"))
	ObserveSourceStatus(nil, "NO_FILE")
	SetQueueDepth(nil, 3)
	ObserveBundleRejection(nil, "validation-hook")
}

func TestUploadFreeFunctionsTolerateNil(t *testing.T) {
	ObserveSlotGranted(nil, "standard")
	ObserveSlotRejected(nil, "no_slots")
	ObserveUpload(nil, 4096, time.Second)
	ObserveUploadFailed(nil, "connection_reset")
	SetActiveSlots(nil, "standard", 2)
	SetWaitingQueueLen(nil, 1)
}

func TestHubFreeFunctionsTolerateNil(t *testing.T) {
	ObserveStateTransition(nil, "hub.example.com", "CONNECTING", "NORMAL")
	ObserveSearchSent(nil, "hub.example.com")
	ObserveReconnect(nil, "hub.example.com", true)
	ObserveFloodEvent(nil, "hub.example.com", "search_spam")
	SetUserCount(nil, "hub.example.com", 100, 80)
	SetPendingSearches(nil, "hub.example.com", 2)
}

func TestShareFreeFunctionsTolerateNil(t *testing.T) {
	ObserveRefresh(nil, "ALL", time.Second, 10, 2)
	ObserveHashCacheResult(nil, true)
	ObserveValidationRejection(nil, "forbidden-extension")
	SetIndexedFileCount(nil, 42)
	ObserveWatcherEvent(nil, "incoming")
	ObservePBDExchange(nil, "piece_update")
}

func TestInitRegistryEnablesConstructors(t *testing.T) {
	// InitRegistry is process-global and this test shares the package with
	// every other test in it; only assert the post-condition it promises,
	// not that it starts disabled (another test may have already enabled
	// it).
	InitRegistry()
	if !IsEnabled() {
		t.Fatalf("expected IsEnabled to be true after InitRegistry")
	}
	if GetRegistry() == nil {
		t.Fatalf("expected GetRegistry to return a non-nil registry once enabled")
	}
}
