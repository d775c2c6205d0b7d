package core

import (
	"fmt"
	"io"
	"os"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/flood"
	"github.com/dcwire/aircore/pkg/hub"
	"github.com/dcwire/aircore/pkg/metrics"
	"github.com/dcwire/aircore/pkg/metrics/prometheus"
	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/share"
	"github.com/dcwire/aircore/pkg/tth"
	"github.com/dcwire/aircore/pkg/upload"
)

// ConnectHub opens a new hub session over t, speaking protocol, and
// registers it under hubURL so it is torn down by Shutdown and reachable
// by Hub/Hubs. Dialing and any TLS negotiation happened in the caller;
// State only drives the protocol state machine from here on.
func (s *State) ConnectHub(hubURL string, protocol Protocol, t hub.Transport) (*hub.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, fmt.Errorf("core: not initialized")
	}
	if _, exists := s.hubs[hubURL]; exists {
		return nil, fmt.Errorf("core: already connected to %s", hubURL)
	}

	var adaptor hub.ProtocolAdaptor
	switch protocol {
	case ProtocolADC:
		adaptor = hub.NewADCAdaptor()
	case ProtocolNMDC:
		adaptor = hub.NewNMDCAdaptor(s.cfg.Identity.Nick)
	default:
		return nil, fmt.Errorf("core: unknown hub protocol %d", protocol)
	}

	self := hub.Identity{
		CID:         s.cfg.Identity.CID,
		Nick:        s.cfg.Identity.Nick,
		Description: s.cfg.Identity.Description,
		Email:       s.cfg.Identity.Email,
	}

	sess := hub.NewSession(hubURL, adaptor, self, s.cfg.Hub)
	sess.AddListener(&identityTracker{state: s})
	if metrics.IsEnabled() {
		sess.SetMetrics(prometheus.NewHubMetrics())
	}
	sess.SetAutoReconnect(true)

	s.hubs[hubURL] = sess
	sess.Connect(t)

	return sess, nil
}

// DisconnectHub closes and forgets the session for hubURL, if any.
func (s *State) DisconnectHub(hubURL, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.hubs[hubURL]
	if !ok {
		return
	}
	sess.Disconnect(reason)
	delete(s.hubs, hubURL)
}

// Hub returns the session for hubURL, if connected.
func (s *State) Hub(hubURL string) (*hub.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.hubs[hubURL]
	return sess, ok
}

// Hubs returns every currently registered hub URL.
func (s *State) Hubs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.hubs))
	for url := range s.hubs {
		out = append(out, url)
	}
	return out
}

// identityTracker feeds every hub's user updates into State's known-user
// table, the source isOperator consults for the upload slot manager's
// operator mini-slot exemption, and applies the cross-hub private-message
// flood counter to incoming chat.
type identityTracker struct {
	hub.NoopListener
	state *State
}

func (t *identityTracker) OnUserUpdated(identity hub.Identity) {
	t.state.knownMu.Lock()
	t.state.known[identity.CID] = identity
	t.state.knownMu.Unlock()
}

func (t *identityTracker) OnUserQuit(cid string) {
	t.state.knownMu.Lock()
	delete(t.state.known, cid)
	t.state.knownMu.Unlock()
}

func (t *identityTracker) OnChatMessage(msg hub.ChatMessage) {
	kind := flood.KindChatMessage
	if msg.Private {
		kind = flood.KindPrivateMessage
	}
	status := t.state.msgFlood.HandleRequest(kind, msg.From.CID)
	if status.HitLimit {
		logger.Warn("cross-hub message flood", "cid", msg.From.CID, "severity", int(status.Severity))
	}
}

func (s *State) isOperator(user connmgr.UserIdentity) bool {
	s.knownMu.RLock()
	defer s.knownMu.RUnlock()
	id, ok := s.known[user.CID]
	return ok && id.Operator
}

func (s *State) uploadSpeed() int64 {
	// Aggregate upload speed across active transfers is tracked by the
	// connection manager, outside this module's scope. This always
	// returns 0, which disables the slot manager's speed-based auto-open
	// relief; State offers no way to supply a speed sampler.
	return 0
}

// newPBDRegistry builds the PBD registry wired to the queue engine for
// bundle lookups and to every registered hub session for delivery.
func (s *State) newPBDRegistry() *share.PBDRegistry {
	return share.NewPBDRegistry(s.lookupPartialBundle, s.sendPBD)
}

// lookupPartialBundle satisfies share.BundleLookup by translating the
// queue engine's LookupByTTH into the shape PBDRegistry expects.
func (s *State) lookupPartialBundle(sum tth.Sum) (share.PartialBundleInfo, bool) {
	token, downloaded, hasFinished, found := s.queueEngine.LookupByTTH(sum)
	if !found {
		return share.PartialBundleInfo{}, false
	}
	return share.PartialBundleInfo{
		BundleToken:      uint64(token),
		Downloaded:       downloaded,
		HasFinishedFiles: hasFinished,
	}, true
}

// sendPBD satisfies share.Sender. Delivering the rendered PBD command
// onto the wire is the connection manager's job once a host wires a real
// implementation (see pkg/connmgr's package doc); until then this is a
// no-op beyond confirming the target hub is still connected.
func (s *State) sendPBD(user connmgr.UserIdentity, hubURL string, msg share.PBDMessage) {
	if _, ok := s.Hub(hubURL); !ok {
		logger.Warn("pbd send: hub not connected", "hub", hubURL, "user", user.CID)
	}
}

// shareFileIndex adapts the content index to upload.FileIndex.
type shareFileIndex struct {
	idx *share.Index
}

func (fi shareFileIndex) Resolve(requestedFile string) (upload.ResolvedFile, error) {
	f, err := fi.idx.ResolveVirtualPath(requestedFile)
	if err != nil {
		return upload.ResolvedFile{}, err
	}
	return upload.ResolvedFile{
		Size: f.Size,
		TTH:  f.TTH,
		Open: func(seg segment.Segment) (connmgr.ReadSeekCloser, error) {
			file, err := os.Open(f.Path)
			if err != nil {
				return nil, err
			}
			if _, err := file.Seek(seg.Start, io.SeekStart); err != nil {
				_ = file.Close()
				return nil, err
			}
			return file, nil
		},
	}, nil
}
