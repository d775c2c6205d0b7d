package upload

import (
	"context"
	"sync"
	"time"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/hooks"
	"github.com/dcwire/aircore/pkg/metrics"
)

// SpeedFunc reports the current aggregate upload speed in bytes/second,
// used by the relief clause of standard_slots_remaining.
type SpeedFunc func() int64

// IsOperatorFunc reports whether a user is exempt from the mini-slot cap.
type IsOperatorFunc func(connmgr.UserIdentity) bool

type delayEntry struct {
	upload *Upload
	expire time.Time
}

type waitingEntry struct {
	user connmgr.UserIdentity
	file string
	at   time.Time
}

// Manager decides slot admission for incoming upload requests. One
// Manager instance serves the whole process; its internal mutex is the
// slot-assignment mutex.
type Manager struct {
	mu sync.Mutex

	cfg        Config
	fileIndex  FileIndex
	speed      SpeedFunc
	isOperator IsOperatorFunc
	now        func() time.Time

	connectionSlots map[string]SlotTag                 // connectionID -> held slot
	ipReservations  map[string]connmgr.UserIdentity     // ip -> reserving user
	mcnCounts       map[string]int                      // user CID -> concurrent MCN connections
	active          map[string]*Upload                  // connectionID -> in-flight upload

	standardSlotsUsed int
	miniSlotsUsed     int
	mcnSmallUsed      int
	lastAutoGrant     time.Time

	delayList    map[string]delayEntry // connectionID+"\x00"+file -> entry
	waitingQueue []waitingEntry

	slotTypeHooks *hooks.Chain[SlotVote]
	listeners     []Listener

	metrics metrics.UploadMetrics
}

// NewManager constructs a Manager. speed and isOperator may be nil, in
// which case speed is treated as always 0 and no user is an operator.
func NewManager(cfg Config, fileIndex FileIndex, speed SpeedFunc, isOperator IsOperatorFunc) *Manager {
	if speed == nil {
		speed = func() int64 { return 0 }
	}
	if isOperator == nil {
		isOperator = func(connmgr.UserIdentity) bool { return false }
	}
	return &Manager{
		cfg:             cfg,
		fileIndex:       fileIndex,
		speed:           speed,
		isOperator:      isOperator,
		now:             time.Now,
		connectionSlots: make(map[string]SlotTag),
		ipReservations:  make(map[string]connmgr.UserIdentity),
		mcnCounts:       make(map[string]int),
		active:          make(map[string]*Upload),
		delayList:       make(map[string]delayEntry),
		slotTypeHooks:   hooks.NewChain[SlotVote](cfg.HookTimeout),
	}
}

// RegisterSlotTypeHook registers an extension point that may force a
// USERSLOT grant, overriding the normal cap.
func (m *Manager) RegisterSlotTypeHook(id string, fn hooks.Func[SlotVote]) {
	m.slotTypeHooks.Register(id, fn)
}

// AddListener registers a listener for Added/Completed/Failed events.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SetMetrics installs a metrics collector. Pass nil to disable.
func (m *Manager) SetMetrics(mm metrics.UploadMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = mm
}

func (m *Manager) metricsLocked() metrics.UploadMetrics {
	return m.metrics
}

// metricsSnapshot returns the currently installed metrics collector.
func (m *Manager) metricsSnapshot() metrics.UploadMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

func (m *Manager) delayKey(connectionID, file string) string {
	return connectionID + "\x00" + file
}

// RequestUpload runs the ordered slot-type decision and either returns a
// prepared Upload or a Rejection.
func (m *Manager) RequestUpload(req connmgr.UploadRequest) (*Upload, *Rejection) {
	if req.User.CID == "" {
		metrics.ObserveSlotRejected(m.metricsSnapshot(), RejectUnknownUser.String())
		return nil, reject(RejectUnknownUser, ErrUnknownUser)
	}

	u, rej := m.admitLocked(req)
	if rej != nil {
		metrics.ObserveSlotRejected(m.metricsSnapshot(), rej.Code.String())
		return nil, rej
	}
	m.notifyAdded(u)
	return u, nil
}

// admitLocked runs the delay-list reuse check and, failing that, the full
// slot-type decision and file open. It takes and releases m.mu itself so
// RequestUpload can fire listeners without holding the lock.
func (m *Manager) admitLocked(req connmgr.UploadRequest) (*Upload, *Rejection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.delayKey(req.ConnectionID, req.RequestedFile)
	if entry, ok := m.delayList[key]; ok {
		delete(m.delayList, key)
		u := entry.upload
		if _, err := u.reader.Seek(req.Segment.Start, 0); err != nil {
			u.reader.Close()
		} else {
			tag, rej := m.decideSlotLocked(req, false, false)
			if rej != nil {
				u.reader.Close()
				return nil, rej
			}
			u.Segment = req.Segment
			u.Started = m.now()
			u.Slot = tag
			m.active[req.ConnectionID] = u
			metrics.ObserveSlotGranted(m.metricsLocked(), string(tag))
			return u, nil
		}
	}

	resolved, err := m.fileIndex.Resolve(req.RequestedFile)
	if err != nil {
		return nil, reject(RejectFileNotAvailable, err)
	}

	small := req.PartialList || resolved.Size <= m.cfg.MiniFileSizeThreshold
	tag, rej := m.decideSlotLocked(req, small, resolved.MetaFile)
	if rej != nil {
		return nil, rej
	}

	reader, err := resolved.Open(req.Segment)
	if err != nil {
		m.releaseSlotLocked(req, tag)
		return nil, reject(RejectFileAccessDenied, err)
	}

	u := &Upload{
		User:          req.User,
		ConnectionID:  req.ConnectionID,
		RequestedFile: req.RequestedFile,
		TTH:           resolved.TTH,
		Segment:       req.Segment,
		Slot:          tag,
		Started:       m.now(),
		reader:        reader,
	}
	m.active[req.ConnectionID] = u
	metrics.ObserveSlotGranted(m.metricsLocked(), string(tag))
	return u, nil
}

// decideSlotLocked implements the ordered slot-type decision from step 1
// through step 6, including MCN admission. Callers hold m.mu.
func (m *Manager) decideSlotLocked(req connmgr.UploadRequest, small, metaFile bool) (SlotTag, *Rejection) {
	if tag, ok := m.connectionSlots[req.ConnectionID]; ok && tag == SlotUser {
		return SlotUser, nil
	}

	if small && req.MCNCapable {
		if rej := m.mcnAdmitLocked(req); rej != nil {
			return "", rej
		}
		if m.mcnSmallUsed < m.cfg.MCNSmallSlotCap {
			m.mcnSmallUsed++
			m.mcnCounts[req.User.CID]++
			m.connectionSlots[req.ConnectionID] = SlotMCNSmall
			metrics.SetActiveSlots(m.metricsLocked(), string(SlotMCNSmall), m.mcnSmallUsed)
			return SlotMCNSmall, nil
		}
	}

	vote, rejection := m.slotTypeHooks.Run(context.Background(), SlotVote{Request: req})
	if rejection != nil {
		return "", reject(RejectProtocol, rejection)
	}

	if vote.ForceSlot || m.standardSlotsRemainingLocked(req) {
		if req.MCNCapable {
			if rej := m.mcnAdmitLocked(req); rej != nil {
				return "", rej
			}
		}
		m.standardSlotsUsed++
		m.lastAutoGrant = m.now()
		m.ipReservations[req.IP] = req.User
		m.connectionSlots[req.ConnectionID] = SlotUser
		if req.MCNCapable {
			m.mcnCounts[req.User.CID]++
		}
		metrics.SetActiveSlots(m.metricsLocked(), string(SlotUser), m.standardSlotsUsed)
		return SlotUser, nil
	}

	if metaFile && (m.isOperator(req.User) || m.miniSlotsUsed < m.cfg.MiniSlots) {
		m.miniSlotsUsed++
		m.connectionSlots[req.ConnectionID] = SlotMiniSlot
		metrics.SetActiveSlots(m.metricsLocked(), string(SlotMiniSlot), m.miniSlotsUsed)
		return SlotMiniSlot, nil
	}

	pos := m.enqueueWaitingLocked(req.User, req.RequestedFile)
	metrics.ObserveSlotRejected(m.metricsLocked(), RejectSlotsFull.String())
	return "", &Rejection{Code: RejectSlotsFull, QueuePosition: pos, Err: ErrSlotsFull}
}

// standardSlotsRemainingLocked implements the predicate from the slot-type
// decision step 4. Callers hold m.mu.
func (m *Manager) standardSlotsRemainingLocked(req connmgr.UploadRequest) bool {
	if holder, ok := m.ipReservations[req.IP]; ok && holder.CID != req.User.CID {
		return false
	}
	freeSlots := m.cfg.StandardSlots - m.standardSlotsUsed
	if freeSlots > 0 {
		return true
	}
	underSpeed := m.speed() < m.cfg.SpeedThresholdBytesPS
	underUploaderCap := len(m.active) < m.cfg.StandardSlots+m.cfg.ExtraAutoOpenSlots
	longEnoughSinceGrant := m.now().Sub(m.lastAutoGrant) >= m.cfg.MinGrantInterval
	return underSpeed && underUploaderCap && longEnoughSinceGrant
}

// mcnAdmitLocked applies the MCN admission rules ahead of a mcn_small or
// MCN-capable userslot grant. Callers hold m.mu.
func (m *Manager) mcnAdmitLocked(req connmgr.UploadRequest) *Rejection {
	count := m.mcnCounts[req.User.CID]
	if count+1 > m.cfg.MCNPerUserCap {
		pos := m.enqueueWaitingLocked(req.User, req.RequestedFile)
		return &Rejection{Code: RejectSlotsFull, QueuePosition: pos, Err: ErrSlotsFull}
	}

	freeSlots := m.cfg.StandardSlots - m.standardSlotsUsed
	if freeSlots <= 0 {
		highest := 0
		for cid, c := range m.mcnCounts {
			if cid != req.User.CID && c > highest {
				highest = c
			}
		}
		if count+1 > highest+1 {
			pos := m.enqueueWaitingLocked(req.User, req.RequestedFile)
			return &Rejection{Code: RejectSlotsFull, QueuePosition: pos, Err: ErrSlotsFull}
		}
	}
	return nil
}

func (m *Manager) enqueueWaitingLocked(user connmgr.UserIdentity, file string) int {
	m.waitingQueue = append(m.waitingQueue, waitingEntry{user: user, file: file, at: m.now()})
	metrics.SetWaitingQueueLen(m.metricsLocked(), len(m.waitingQueue))
	return len(m.waitingQueue)
}

func (m *Manager) releaseSlotLocked(req connmgr.UploadRequest, tag SlotTag) {
	switch tag {
	case SlotUser:
		if m.standardSlotsUsed > 0 {
			m.standardSlotsUsed--
		}
		delete(m.ipReservations, req.IP)
		metrics.SetActiveSlots(m.metricsLocked(), string(SlotUser), m.standardSlotsUsed)
	case SlotMCNSmall:
		if m.mcnSmallUsed > 0 {
			m.mcnSmallUsed--
		}
		if m.mcnCounts[req.User.CID] > 0 {
			m.mcnCounts[req.User.CID]--
		}
		metrics.SetActiveSlots(m.metricsLocked(), string(SlotMCNSmall), m.mcnSmallUsed)
	case SlotMiniSlot:
		if m.miniSlotsUsed > 0 {
			m.miniSlotsUsed--
		}
		metrics.SetActiveSlots(m.metricsLocked(), string(SlotMiniSlot), m.miniSlotsUsed)
	}
	delete(m.connectionSlots, req.ConnectionID)
}

// CompleteUpload releases u's slot and moves it onto the delay list, so a
// follow-up request on the same connection for the same file can reuse
// the open stream instead of reopening it.
func (m *Manager) CompleteUpload(u *Upload) {
	m.mu.Lock()
	req := connmgr.UploadRequest{User: u.User, ConnectionID: u.ConnectionID, IP: m.reservedIPLocked(u.User)}
	m.releaseSlotLocked(req, u.Slot)
	delete(m.active, u.ConnectionID)
	m.delayList[m.delayKey(u.ConnectionID, u.RequestedFile)] = delayEntry{
		upload: u,
		expire: m.now().Add(m.cfg.DelayGrace),
	}
	mm := m.metricsLocked()
	m.mu.Unlock()
	metrics.ObserveUpload(mm, u.BytesSent(), m.now().Sub(u.Started))
	m.notifyCompleted(u)
}

func (m *Manager) reservedIPLocked(user connmgr.UserIdentity) string {
	for ip, holder := range m.ipReservations {
		if holder.CID == user.CID {
			return ip
		}
	}
	return ""
}

// FailUpload releases u's slot without delay-list retention and fires the
// failed listener.
func (m *Manager) FailUpload(u *Upload, err error) {
	m.mu.Lock()
	req := connmgr.UploadRequest{User: u.User, ConnectionID: u.ConnectionID, IP: m.reservedIPLocked(u.User)}
	m.releaseSlotLocked(req, u.Slot)
	delete(m.active, u.ConnectionID)
	u.reader.Close()
	mm := m.metricsLocked()
	m.mu.Unlock()
	metrics.ObserveUploadFailed(mm, "transfer_error")
	m.notifyFailed(u, err)
}

// ExpireDelayList closes and drops delay-list entries past their grace
// period, and prunes waiting-queue entries older than maxWaitingAge. It is meant
// to be driven by a periodic timer tick.
func (m *Manager) ExpireDelayList(maxWaitingAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.delayList {
		if now.After(entry.expire) {
			entry.upload.reader.Close()
			delete(m.delayList, key)
		}
	}

	cutoff := now.Add(-maxWaitingAge)
	kept := m.waitingQueue[:0]
	for _, w := range m.waitingQueue {
		if w.at.After(cutoff) {
			kept = append(kept, w)
		}
	}
	m.waitingQueue = kept
}

// WaitingQueueLen reports the current estimated queue depth used for
// SLOTS_FULL position reporting.
func (m *Manager) WaitingQueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waitingQueue)
}

func (m *Manager) notifyAdded(u *Upload) {
	for _, l := range m.snapshotListeners() {
		l.UploadAdded(u)
	}
	logger.Info("upload admitted",
		logger.Component("upload"),
		logger.PeerCID(u.User.CID),
		logger.Target(u.RequestedFile),
		logger.SlotType(string(u.Slot)),
	)
}

func (m *Manager) notifyCompleted(u *Upload) {
	for _, l := range m.snapshotListeners() {
		l.UploadCompleted(u)
	}
}

func (m *Manager) notifyFailed(u *Upload, err error) {
	for _, l := range m.snapshotListeners() {
		l.UploadFailed(u, err)
	}
	logger.Warn("upload failed",
		logger.Component("upload"),
		logger.PeerCID(u.User.CID),
		logger.Target(u.RequestedFile),
		logger.Err(err),
	)
}

func (m *Manager) snapshotListeners() []Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Listener, len(m.listeners))
	copy(out, m.listeners)
	return out
}
