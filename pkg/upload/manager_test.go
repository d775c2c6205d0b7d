package upload

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/hooks"
	"github.com/dcwire/aircore/pkg/segment"
)

type fakeReader struct {
	*bytes.Reader
	closed bool
}

func (f *fakeReader) Close() error { f.closed = true; return nil }

type fakeFileIndex struct {
	files     map[string]ResolvedFile
	openCalls int
}

func newFakeFileIndex() *fakeFileIndex {
	return &fakeFileIndex{files: make(map[string]ResolvedFile)}
}

func (f *fakeFileIndex) add(path string, size int64, meta bool) {
	f.files[path] = ResolvedFile{
		Size:     size,
		MetaFile: meta,
		Open: func(seg segment.Segment) (connmgr.ReadSeekCloser, error) {
			f.openCalls++
			return &fakeReader{Reader: bytes.NewReader(make([]byte, size))}, nil
		},
	}
}

func (f *fakeFileIndex) Resolve(requestedFile string) (ResolvedFile, error) {
	rf, ok := f.files[requestedFile]
	if !ok {
		return ResolvedFile{}, ErrFileNotAvailable
	}
	return rf, nil
}

func newTestManager(cfg Config, idx FileIndex) *Manager {
	return NewManager(cfg, idx, nil, nil)
}

func req(cid, conn, file string, size int64) connmgr.UploadRequest {
	return connmgr.UploadRequest{
		User:         connmgr.UserIdentity{CID: cid, Nick: cid},
		ConnectionID: conn,
		RequestedFile: file,
		Segment:      segment.Segment{Start: 0, Length: size},
		IP:           "203.0.113." + cid,
		RequestTime:  time.Now(),
	}
}

func TestRequestUploadGrantsUserSlotWhenFreeSlotsAvailable(t *testing.T) {
	idx := newFakeFileIndex()
	idx.add("/a.bin", 1000, false)
	m := newTestManager(DefaultConfig(), idx)

	u, rej := m.RequestUpload(req("AAAA", "c1", "/a.bin", 1000))
	if rej != nil {
		t.Fatalf("RequestUpload rejected: %v", rej)
	}
	if u.Slot != SlotUser {
		t.Errorf("Slot = %v, want %v", u.Slot, SlotUser)
	}
}

func TestRequestUploadKeepsExistingUserSlotOnSameConnection(t *testing.T) {
	idx := newFakeFileIndex()
	idx.add("/a.bin", 1000, false)
	idx.add("/b.bin", 1000, false)
	cfg := DefaultConfig()
	cfg.StandardSlots = 1
	m := newTestManager(cfg, idx)

	first, rej := m.RequestUpload(req("AAAA", "c1", "/a.bin", 1000))
	if rej != nil {
		t.Fatalf("first RequestUpload rejected: %v", rej)
	}
	if first.Slot != SlotUser {
		t.Fatalf("first slot = %v, want userslot", first.Slot)
	}

	second, rej := m.RequestUpload(req("AAAA", "c1", "/b.bin", 1000))
	if rej != nil {
		t.Fatalf("second RequestUpload on same connection rejected: %v", rej)
	}
	if second.Slot != SlotUser {
		t.Errorf("second slot = %v, want userslot (sticky)", second.Slot)
	}
}

func TestRequestUploadGrantsMCNSmallSlotForSmallFileUnderCap(t *testing.T) {
	idx := newFakeFileIndex()
	idx.add("/thumb.bin", 100, false)
	cfg := DefaultConfig()
	cfg.StandardSlots = 0 // force past the userslot branch
	m := newTestManager(cfg, idx)

	r := req("AAAA", "c1", "/thumb.bin", 100)
	r.MCNCapable = true
	u, rej := m.RequestUpload(r)
	if rej != nil {
		t.Fatalf("RequestUpload rejected: %v", rej)
	}
	if u.Slot != SlotMCNSmall {
		t.Errorf("Slot = %v, want %v", u.Slot, SlotMCNSmall)
	}
}

func TestRequestUploadRefusesSlotsFullWithQueuePosition(t *testing.T) {
	idx := newFakeFileIndex()
	idx.add("/a.bin", 10*1024*1024, false)
	idx.add("/b.bin", 10*1024*1024, false)
	cfg := DefaultConfig()
	cfg.StandardSlots = 1
	cfg.ExtraAutoOpenSlots = 0
	cfg.MiniSlots = 0
	m := newTestManager(cfg, idx)

	_, rej := m.RequestUpload(req("AAAA", "c1", "/a.bin", 10*1024*1024))
	if rej != nil {
		t.Fatalf("first RequestUpload rejected: %v", rej)
	}

	_, rej = m.RequestUpload(req("BBBB", "c2", "/b.bin", 10*1024*1024))
	if rej == nil {
		t.Fatal("expected second request to be refused, slots full")
	}
	if rej.Code != RejectSlotsFull {
		t.Errorf("Code = %v, want RejectSlotsFull", rej.Code)
	}
	if rej.QueuePosition != 1 {
		t.Errorf("QueuePosition = %d, want 1", rej.QueuePosition)
	}
}

func TestRequestUploadUnknownFileIsFileNotAvailable(t *testing.T) {
	idx := newFakeFileIndex()
	m := newTestManager(DefaultConfig(), idx)

	_, rej := m.RequestUpload(req("AAAA", "c1", "/missing.bin", 100))
	if rej == nil || rej.Code != RejectFileNotAvailable {
		t.Fatalf("rej = %v, want RejectFileNotAvailable", rej)
	}
}

func TestRequestUploadGrantsMiniSlotToOperatorWhenStandardSlotsExhausted(t *testing.T) {
	idx := newFakeFileIndex()
	idx.add("/files.xml.bz2", 2000, true)
	idx.add("/a.bin", 10*1024*1024, false)
	cfg := DefaultConfig()
	cfg.StandardSlots = 1
	cfg.ExtraAutoOpenSlots = 0
	m := NewManager(cfg, idx, nil, func(u connmgr.UserIdentity) bool { return u.CID == "OP01" })

	_, rej := m.RequestUpload(req("AAAA", "c1", "/a.bin", 10*1024*1024))
	if rej != nil {
		t.Fatalf("first RequestUpload rejected: %v", rej)
	}

	u, rej := m.RequestUpload(req("OP01", "c2", "/files.xml.bz2", 2000))
	if rej != nil {
		t.Fatalf("operator mini-slot request rejected: %v", rej)
	}
	if u.Slot != SlotMiniSlot {
		t.Errorf("Slot = %v, want %v", u.Slot, SlotMiniSlot)
	}
}

func TestCompleteUploadThenRequestReusesStreamWithoutReopening(t *testing.T) {
	idx := newFakeFileIndex()
	idx.add("/a.bin", 1000, false)
	m := newTestManager(DefaultConfig(), idx)

	u, rej := m.RequestUpload(req("AAAA", "c1", "/a.bin", 1000))
	if rej != nil {
		t.Fatalf("RequestUpload rejected: %v", rej)
	}
	if idx.openCalls != 1 {
		t.Fatalf("openCalls = %d, want 1", idx.openCalls)
	}
	m.CompleteUpload(u)

	_, rej = m.RequestUpload(req("AAAA", "c1", "/a.bin", 1000))
	if rej != nil {
		t.Fatalf("reuse RequestUpload rejected: %v", rej)
	}
	if idx.openCalls != 1 {
		t.Errorf("openCalls = %d, want still 1 (reused delay-list stream)", idx.openCalls)
	}
}

func TestExpireDelayListClosesExpiredEntries(t *testing.T) {
	idx := newFakeFileIndex()
	idx.add("/a.bin", 1000, false)
	cfg := DefaultConfig()
	cfg.DelayGrace = 1 * time.Millisecond
	m := newTestManager(cfg, idx)

	u, rej := m.RequestUpload(req("AAAA", "c1", "/a.bin", 1000))
	if rej != nil {
		t.Fatalf("RequestUpload rejected: %v", rej)
	}
	reader := u.reader.(*fakeReader)
	m.CompleteUpload(u)
	time.Sleep(5 * time.Millisecond)
	m.ExpireDelayList(time.Hour)

	if !reader.closed {
		t.Error("expected the delay-listed reader to be closed after expiry")
	}
}

func TestSlotTypeHookCanForceUserSlot(t *testing.T) {
	idx := newFakeFileIndex()
	idx.add("/a.bin", 10*1024*1024, false)
	cfg := DefaultConfig()
	cfg.StandardSlots = 0
	cfg.MiniSlots = 0
	m := newTestManager(cfg, idx)
	m.RegisterSlotTypeHook("vip", func(ctx context.Context, vote SlotVote) (*SlotVote, *hooks.Rejection) {
		vote.ForceSlot = true
		vote.VotedBySub = "vip"
		return &vote, nil
	})

	u, rej := m.RequestUpload(req("AAAA", "c1", "/a.bin", 10*1024*1024))
	if rej != nil {
		t.Fatalf("RequestUpload rejected: %v", rej)
	}
	if u.Slot != SlotUser {
		t.Errorf("Slot = %v, want %v (hook forced)", u.Slot, SlotUser)
	}
}
