package flood

import (
	"testing"
	"time"
)

func TestHitLimitReportedOnceAtCrossing(t *testing.T) {
	c := NewCounter()
	c.Configure(KindConnect, Limits{Period: time.Minute, MinorCount: 3, SevereCount: 5})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	c.now = func() time.Time {
		t := base.Add(time.Duration(tick) * time.Second)
		tick++
		return t
	}

	var statuses []Status
	for i := 0; i < 6; i++ {
		statuses = append(statuses, c.HandleRequest(KindConnect, "1.2.3.4"))
	}

	if statuses[0].Severity != SeverityNone {
		t.Fatalf("request 1: severity = %v, want none", statuses[0].Severity)
	}
	if statuses[2].Severity != SeverityMinor || !statuses[2].HitLimit {
		t.Fatalf("request 3 (minor threshold): got %+v", statuses[2])
	}
	if statuses[3].Severity != SeverityMinor || statuses[3].HitLimit {
		t.Fatalf("request 4 should stay minor without re-reporting HitLimit: got %+v", statuses[3])
	}
	if statuses[4].Severity != SeveritySevere || !statuses[4].HitLimit {
		t.Fatalf("request 5 (severe threshold): got %+v", statuses[4])
	}
	if statuses[5].Severity != SeveritySevere || statuses[5].HitLimit {
		t.Fatalf("request 6 should stay severe without re-reporting HitLimit: got %+v", statuses[5])
	}
}

func TestWindowExpiryResetsCount(t *testing.T) {
	c := NewCounter()
	c.Configure(KindSearch, Limits{Period: 10 * time.Second, MinorCount: 2, SevereCount: 4})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.HandleRequest(KindSearch, "5.6.7.8")
	status := c.HandleRequest(KindSearch, "5.6.7.8")
	if status.Severity != SeverityMinor || !status.HitLimit {
		t.Fatalf("expected minor hit on second request, got %+v", status)
	}

	now = now.Add(11 * time.Second)
	status = c.HandleRequest(KindSearch, "5.6.7.8")
	if status.Severity != SeverityNone {
		t.Fatalf("after window expiry severity should reset to none, got %+v", status)
	}
}

func TestDistinctIPsTrackedIndependently(t *testing.T) {
	c := NewCounter()
	c.Configure(KindConnect, Limits{Period: time.Minute, MinorCount: 2, SevereCount: 4})

	c.HandleRequest(KindConnect, "1.1.1.1")
	c.HandleRequest(KindConnect, "1.1.1.1")
	status := c.HandleRequest(KindConnect, "2.2.2.2")
	if status.Severity != SeverityNone {
		t.Fatalf("a fresh IP should not inherit another IP's count, got %+v", status)
	}
}

func TestUnconfiguredKindNeverFloods(t *testing.T) {
	c := NewCounter()
	for i := 0; i < 100; i++ {
		status := c.HandleRequest(KindChatMessage, "9.9.9.9")
		if status.Severity != SeverityNone {
			t.Fatalf("unconfigured kind reported a flood status: %+v", status)
		}
	}
}

func TestForgetClearsHistory(t *testing.T) {
	c := NewCounter()
	c.Configure(KindConnect, Limits{Period: time.Minute, MinorCount: 2, SevereCount: 3})

	c.HandleRequest(KindConnect, "3.3.3.3")
	c.HandleRequest(KindConnect, "3.3.3.3")
	c.Forget("3.3.3.3")

	status := c.HandleRequest(KindConnect, "3.3.3.3")
	if status.Count != 1 {
		t.Fatalf("Count after Forget = %d, want 1", status.Count)
	}
}
