package share

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/metrics"
	"github.com/dcwire/aircore/pkg/timersvc"
)

// Ticker is the narrow slice of timersvc.Service the watcher debounces
// against, so tests can supply a fake without standing up a real timer.
type Ticker interface {
	OnSecond(timersvc.Listener)
}

// Watcher watches every Incoming share root's top-level directory and
// enqueues a RefreshIncoming task once activity there has been quiet for
// debounceWindow, so a burst of drops from one download doesn't trigger a
// refresh per file.
type Watcher struct {
	mu sync.Mutex

	fsw     *fsnotify.Watcher
	manager *Manager
	idx     *Index

	debounceWindow time.Duration
	dirty          map[string]time.Time // virtual root name -> last event time
}

// NewWatcher starts watching every current Incoming root in idx and
// registers its debounce tick on ticker. Roots added to idx after this
// call are not picked up; call Watch explicitly for those.
func NewWatcher(idx *Index, manager *Manager, ticker Ticker, debounceWindow time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:            fsw,
		manager:        manager,
		idx:            idx,
		debounceWindow: debounceWindow,
		dirty:          make(map[string]time.Time),
	}

	for _, root := range idx.Roots() {
		if root.Incoming {
			if err := w.Watch(root); err != nil {
				logger.Warn("failed to watch incoming root", logger.ShareRoot(root.VirtualName), logger.Err(err))
			}
		}
	}

	ticker.OnSecond(w.onTick)
	go w.loop()

	return w, nil
}

// Watch adds root's real path to the fsnotify watch list. Safe to call for
// roots registered after NewWatcher.
func (w *Watcher) Watch(root *Root) error {
	return w.fsw.Add(root.RealPath)
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("share watcher error", logger.Err(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	root := w.rootForPath(event.Name)
	if root == nil {
		return
	}

	w.mu.Lock()
	w.dirty[root.VirtualName] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) rootForPath(path string) *Root {
	for _, root := range w.idx.Roots() {
		if root.Incoming && isWithinPath(root.RealPath, path) {
			return root
		}
	}
	return nil
}

// onTick is registered on the shared second timer; it promotes any root
// that has been quiet for at least debounceWindow into a queued refresh.
func (w *Watcher) onTick(now time.Time) {
	w.mu.Lock()
	var ready []string
	for name, last := range w.dirty {
		if now.Sub(last) >= w.debounceWindow {
			ready = append(ready, name)
			delete(w.dirty, name)
		}
	}
	w.mu.Unlock()

	for _, name := range ready {
		metrics.ObserveWatcherEvent(w.manager.metricsSnapshot(), name)
		w.manager.Queue(RefreshTask{Type: RefreshIncoming, Priority: RefreshManual, Paths: []string{name}})
	}
}
