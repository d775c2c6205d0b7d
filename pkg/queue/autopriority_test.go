package queue

import (
	"testing"
	"time"

	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/segment"
)

func TestProgressPriorityThresholds(t *testing.T) {
	cases := []struct {
		fraction float64
		want     Priority
	}{
		{0.0, PriorityLow},
		{0.39, PriorityLow},
		{0.40, PriorityNormal},
		{0.75, PriorityHigh},
		{0.96, PriorityHighest},
	}
	for _, c := range cases {
		if got := progressPriority(c.fraction); got != c.want {
			t.Errorf("progressPriority(%v) = %v, want %v", c.fraction, got, c.want)
		}
	}
}

func TestBundleScoreIsBoundedAndMonotonic(t *testing.T) {
	low := bundleScore(0, 0)
	high := bundleScore(20*1024*1024, 50)
	if low != 0 {
		t.Errorf("bundleScore(0,0) = %v, want 0", low)
	}
	if high != 100 {
		t.Errorf("bundleScore at saturation = %v, want 100", high)
	}
	mid := bundleScore(5*1024*1024, 10)
	if mid <= low || mid >= high {
		t.Errorf("bundleScore(mid) = %v, want strictly between %v and %v", mid, low, high)
	}
}

func TestRunAutoPriorityUpdatesOnlyAutoPriorityBundles(t *testing.T) {
	e := newTestEngine(t)
	user := testUser("AAAA")

	autoInfo, err := e.AddSingleFile(AddRequest{
		Target: "/downloads/auto.bin",
		Size:   1000,
		Source: &connmgr.Source{User: user},
	})
	if err != nil {
		t.Fatalf("AddSingleFile: %v", err)
	}
	autoInfo.Bundle.AutoPriority = true
	item := autoInfo.Bundle.Items()[0]
	item.AutoPriority = true
	item.SetDownloaded([]segment.Segment{{Start: 0, Length: 800}})

	manualInfo, err := e.AddSingleFile(AddRequest{
		Target:   "/downloads/manual.bin",
		Size:     1000,
		Priority: PriorityHigh,
		Source:   &connmgr.Source{User: user},
	})
	if err != nil {
		t.Fatalf("AddSingleFile: %v", err)
	}

	e.RunAutoPriority(time.Now())

	if got := item.Priority; got != PriorityHigh {
		t.Errorf("auto item priority = %v, want HIGH (80%% downloaded)", got)
	}
	if got := manualInfo.Bundle.Items()[0].Priority; got != PriorityHigh {
		t.Errorf("manual item priority changed to %v, want unchanged HIGH", got)
	}
}
