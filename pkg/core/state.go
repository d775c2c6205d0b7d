// Package core wires the content index, download queue, upload manager
// and hub connections into one process-wide State, the object spec.md §2
// calls a "singleton-style process-wide state with explicit lifecycle."
//
// State itself opens no sockets: dialing a hub or a peer transfer
// connection is the host's job (and, for peer transfers, explicitly out
// of scope — see pkg/connmgr's package doc). State only ever sees the
// collaborator interfaces pkg/connmgr, pkg/queue and pkg/upload already
// define, plus the hub.Session objects a host hands it a connected
// Transport for.
package core

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dcwire/aircore/internal/ids"
	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/config"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/flood"
	"github.com/dcwire/aircore/pkg/hub"
	"github.com/dcwire/aircore/pkg/metrics"
	"github.com/dcwire/aircore/pkg/metrics/prometheus"
	"github.com/dcwire/aircore/pkg/queue"
	"github.com/dcwire/aircore/pkg/share"
	"github.com/dcwire/aircore/pkg/share/hashcache"
	"github.com/dcwire/aircore/pkg/timersvc"
	"github.com/dcwire/aircore/pkg/upload"
)

// Cross-hub private-message flood thresholds. Unlike the per-hub CTM and
// search limits in hub.Config, a single abusive user can reach our nick
// through any number of simultaneously joined hubs, so this counter keys
// on CID rather than IP and is owned once by State instead of once per
// Session.
const (
	pmFloodMinor  = 5
	pmFloodSevere = 15
)

// Protocol selects which ProtocolAdaptor a hub connection speaks.
type Protocol int

const (
	ProtocolADC Protocol = iota
	ProtocolNMDC
)

// State owns one instance each of the timer service, the cross-hub
// message-flood counter, the content index and its refresh/verification
// pipeline, the download queue engine, the upload slot manager, and the
// registry of open hub sessions. Initialize wires them together;
// Shutdown closes the hub sessions, then the share watcher, the refresh
// worker, the timer service and the hash cache.
type State struct {
	mu sync.RWMutex

	runID     string
	startedAt time.Time
	cfg       *config.Config

	tokens   *ids.Generator
	timer    *timersvc.Service
	msgFlood *flood.Counter

	hashCache *hashcache.Cache
	index     *share.Index
	refresh   *share.Manager
	watcher   *share.Watcher
	pbd       *share.PBDRegistry

	queueEngine *queue.Engine
	uploadMgr   *upload.Manager

	connMgr connmgr.Manager

	hubs map[string]*hub.Session // hub URL -> session

	knownMu sync.RWMutex
	known   map[string]hub.Identity // CID -> last seen identity

	started bool
}

// New returns a State that has not yet been initialized.
func New() *State {
	return &State{
		hubs:  make(map[string]*hub.Session),
		known: make(map[string]hub.Identity),
	}
}

// RunID returns the identifier minted for this process's lifetime by
// Initialize, stable until the next Shutdown/Initialize cycle. Empty
// before the first Initialize.
func (s *State) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// StartedAt returns when Initialize completed.
func (s *State) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Initialize wires every component from cfg and starts the timer service
// and filesystem watcher. connMgr is the caller's connection-manager
// collaborator (see pkg/connmgr); State never constructs one itself since
// opening peer sockets is outside this module's scope.
func (s *State) Initialize(ctx context.Context, cfg *config.Config, connMgr connmgr.Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("core: already initialized")
	}
	if cfg == nil {
		return fmt.Errorf("core: nil config")
	}
	if connMgr == nil {
		return fmt.Errorf("core: nil connection manager")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("core: create data dir: %w", err)
	}

	s.cfg = cfg
	s.connMgr = connMgr
	s.runID = uuid.NewString()
	s.tokens = ids.NewGenerator()
	s.timer = timersvc.New()

	s.msgFlood = flood.NewCounter()
	s.msgFlood.Configure(flood.KindPrivateMessage, flood.Limits{
		Period: cfg.Hub.FloodPeriod, MinorCount: pmFloodMinor, SevereCount: pmFloodSevere,
	})
	s.msgFlood.Configure(flood.KindChatMessage, flood.Limits{
		Period: cfg.Hub.FloodPeriod, MinorCount: pmFloodMinor * 4, SevereCount: pmFloodSevere * 4,
	})

	hashCache, err := hashcache.Open(cfg.Share.HashCacheDir)
	if err != nil {
		return fmt.Errorf("core: open hash cache: %w", err)
	}
	s.hashCache = hashCache

	s.index = share.NewIndex(cfg.Share)

	skipList := share.NewSkipList(share.SkipModeWildcard, nil)
	var queueEngineRef *queue.Engine // set below, closed over for UnfinishedBundleChecker
	validator := share.NewValidator(cfg.Share, skipList, func(path string) bool {
		if queueEngineRef == nil {
			return false
		}
		return queueEngineRef.IsUnfinished(path)
	})
	s.refresh = share.NewManager(s.index, cfg.Share, validator, s.hashCache)

	s.queueEngine = queue.NewEngine(cfg.Queue, s.tokens, connMgr, s.index)
	queueEngineRef = s.queueEngine
	if metrics.IsEnabled() {
		s.queueEngine.SetMetrics(prometheus.NewQueueMetrics())
	}
	s.refresh.SetHashPauser(func(path string) bool {
		return s.queueEngine.IsUnfinished(path)
	})

	s.pbd = s.newPBDRegistry()

	if metrics.IsEnabled() {
		// One shareMetrics instance is shared by the refresh manager and
		// the PBD registry; both would otherwise register the same
		// Prometheus metric names twice.
		sm := prometheus.NewShareMetrics()
		s.refresh.SetMetrics(sm)
		s.pbd.SetMetrics(sm)
	}

	s.uploadMgr = upload.NewManager(cfg.Upload, shareFileIndex{idx: s.index}, s.uploadSpeed, s.isOperator)
	if metrics.IsEnabled() {
		s.uploadMgr.SetMetrics(prometheus.NewUploadMetrics())
	}

	watcher, err := share.NewWatcher(s.index, s.refresh, s.timer, 2*time.Second)
	if err != nil {
		return fmt.Errorf("core: start share watcher: %w", err)
	}
	s.watcher = watcher

	s.timer.OnMinute(func(now time.Time) {
		s.queueEngine.RunAutoPriority(now)
	})

	s.timer.Start(ctx)

	s.started = true
	s.startedAt = time.Now()
	logger.Info("core initialized", "run_id", s.runID, "data_dir", cfg.DataDir)
	return nil
}

// Shutdown closes every open hub session, closes the share watcher, stops
// the refresh worker, stops the timer service and closes the hash cache.
// Queued non-blocking refresh tasks are dropped, and a refresh walk that
// is already running is not waited for. It is safe to call on a State
// that was never initialized.
func (s *State) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	for url, sess := range s.hubs {
		sess.Disconnect("shutting down")
		delete(s.hubs, url)
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logger.Warn("core: share watcher close error", logger.Err(err))
		}
	}
	if s.refresh != nil {
		s.refresh.Close()
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.hashCache != nil {
		if err := s.hashCache.Close(); err != nil {
			logger.Warn("core: hash cache close error", logger.Err(err))
		}
	}

	s.started = false
	logger.Info("core shut down", "run_id", s.runID)
	return nil
}

// Index returns the content index.
func (s *State) Index() *share.Index { return s.index }

// Refresh returns the refresh manager.
func (s *State) Refresh() *share.Manager { return s.refresh }

// Queue returns the download queue engine.
func (s *State) Queue() *queue.Engine { return s.queueEngine }

// Upload returns the upload slot manager.
func (s *State) Upload() *upload.Manager { return s.uploadMgr }

// PBD returns the partial-bundle-discovery registry.
func (s *State) PBD() *share.PBDRegistry { return s.pbd }
