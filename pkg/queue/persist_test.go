package queue

import (
	"strings"
	"testing"

	"github.com/dcwire/aircore/internal/ids"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/tth"
)

func TestMarshalUnmarshalSingleFileBundleRoundTrips(t *testing.T) {
	sum := tth.Sum{}
	sum[0] = 0xAB

	bundle := NewBundle(ids.Token(1), "/t/a.bin", PriorityNormal, true)
	item := NewQueueItem(ids.Token(2), "/t/a.bin", "/t/a.bin.!airDC++", 1048576, sum, PriorityNormal)
	item.MaxSegments = 3
	item.downloaded.Add(segment.Segment{Start: 0, Length: 358400})
	item.downloaded.Add(segment.Segment{Start: 358400, Length: 358400})
	item.sources = append(item.sources, ItemSource{
		User:    connmgr.UserIdentity{CID: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Nick: "alice"},
		HubHint: "adc://hub.example.com:412",
		Status:  SourceGood,
	})
	bundle.AddItem(item)

	data, err := MarshalBundle(bundle)
	if err != nil {
		t.Fatalf("MarshalBundle: %v", err)
	}
	if !strings.Contains(string(data), "<File ") {
		t.Fatalf("expected a <File> root element, got:\n%s", data)
	}

	got, err := UnmarshalBundle(data)
	if err != nil {
		t.Fatalf("UnmarshalBundle: %v", err)
	}

	if got.Target != bundle.Target {
		t.Errorf("Target = %q, want %q", got.Target, bundle.Target)
	}
	if !got.FileBundle {
		t.Error("expected FileBundle to round-trip true")
	}
	gotItems := got.Items()
	if len(gotItems) != 1 {
		t.Fatalf("got %d items, want 1", len(gotItems))
	}
	gotItem := gotItems[0]
	if gotItem.Target != item.Target {
		t.Errorf("item Target = %q, want %q", gotItem.Target, item.Target)
	}
	if gotItem.Size != item.Size {
		t.Errorf("item Size = %d, want %d", gotItem.Size, item.Size)
	}
	if gotItem.TTH != item.TTH {
		t.Errorf("item TTH = %v, want %v", gotItem.TTH, item.TTH)
	}
	if gotItem.MaxSegments != item.MaxSegments {
		t.Errorf("item MaxSegments = %d, want %d", gotItem.MaxSegments, item.MaxSegments)
	}
	if gotItem.DownloadedBytes() != item.DownloadedBytes() {
		t.Errorf("item DownloadedBytes = %d, want %d", gotItem.DownloadedBytes(), item.DownloadedBytes())
	}
	if len(gotItem.sources) != 1 || gotItem.sources[0].User.CID != "AAAAAAAAAAAAAAAAAAAAAAAAAAAAA" {
		t.Errorf("sources = %+v, want one source with the original CID", gotItem.sources)
	}
}

func TestMarshalUnmarshalMultiFileBundleRoundTrips(t *testing.T) {
	bundle := NewBundle(ids.Token(1), "/t/release", PriorityHigh, false)
	a := NewQueueItem(ids.Token(2), "/t/release/a.bin", "", 1000, tth.Sum{}, PriorityHigh)
	b := NewQueueItem(ids.Token(3), "/t/release/b.bin", "", 2000, tth.Sum{}, PriorityHigh)
	bundle.AddItem(a)
	bundle.AddItem(b)

	finished := NewQueueItem(ids.Token(4), "/t/release/c.bin", "", 500, tth.Sum{}, PriorityNormal)
	finished.downloaded.Add(segment.Segment{Start: 0, Length: 500})
	bundle.AddItem(finished)
	bundle.MarkFinished(finished)

	data, err := MarshalBundle(bundle)
	if err != nil {
		t.Fatalf("MarshalBundle: %v", err)
	}
	if !strings.Contains(string(data), "<Bundle ") {
		t.Fatalf("expected a <Bundle> root element, got:\n%s", data)
	}

	got, err := UnmarshalBundle(data)
	if err != nil {
		t.Fatalf("UnmarshalBundle: %v", err)
	}

	if got.FileBundle {
		t.Error("expected FileBundle to round-trip false")
	}
	if len(got.Items()) != 2 {
		t.Fatalf("got %d queued items, want 2", len(got.Items()))
	}
	gotFinished := got.Finished()
	if len(gotFinished) != 1 {
		t.Fatalf("got %d finished items, want 1", len(gotFinished))
	}
	if gotFinished[0].Target != finished.Target {
		t.Errorf("finished Target = %q, want %q", gotFinished[0].Target, finished.Target)
	}
}

func TestUnmarshalBundleRejectsUnknownRoot(t *testing.T) {
	_, err := UnmarshalBundle([]byte(`<Queue Version="2"/>`))
	if err == nil {
		t.Fatal("expected an error for an unrecognized root element")
	}
}

func TestParsePriorityRoundTripsEveryStringValue(t *testing.T) {
	for p := PriorityPausedForce; p <= PriorityDefault; p++ {
		if got := parsePriority(p.String()); got != p {
			t.Errorf("parsePriority(%q) = %v, want %v", p.String(), got, p)
		}
	}
}

func TestParsePriorityDefaultsToNormalOnUnknownValue(t *testing.T) {
	if got := parsePriority("NOT_A_PRIORITY"); got != PriorityNormal {
		t.Errorf("parsePriority(unknown) = %v, want PriorityNormal", got)
	}
}
