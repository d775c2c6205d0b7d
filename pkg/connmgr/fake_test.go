package connmgr

import "testing"

func TestFakeRecordsStartedDownloads(t *testing.T) {
	f := NewFake()
	req := DownloadRequest{QueueToken: 1, Source: Source{User: UserIdentity{CID: "abc"}}}
	if err := f.StartDownload(req); err != nil {
		t.Fatal(err)
	}
	started := f.Started()
	if len(started) != 1 || started[0].QueueToken != 1 {
		t.Fatalf("unexpected started list: %+v", started)
	}
}

func TestFakeDeliversCompletion(t *testing.T) {
	f := NewFake()
	f.Complete(SegmentResult{QueueToken: 42, BytesReceived: 1024})

	select {
	case res := <-f.Results():
		if res.QueueToken != 42 || res.BytesReceived != 1024 {
			t.Fatalf("unexpected result: %+v", res)
		}
	default:
		t.Fatal("expected a buffered result to be immediately available")
	}
}

func TestFakeTracksDisconnects(t *testing.T) {
	f := NewFake()
	f.DisconnectOverlapping(7, Source{User: UserIdentity{CID: "keep"}})
	f.DisconnectOverlapping(7, Source{User: UserIdentity{CID: "keep"}})
	f.DisconnectOverlapping(8, Source{})

	if f.DisconnectCount(7) != 2 {
		t.Fatalf("DisconnectCount(7) = %d, want 2", f.DisconnectCount(7))
	}
	if f.DisconnectCount(8) != 1 {
		t.Fatalf("DisconnectCount(8) = %d, want 1", f.DisconnectCount(8))
	}
}
