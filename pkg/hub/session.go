package hub

import (
	"math/rand"
	"sync"
	"time"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/flood"
	"github.com/dcwire/aircore/pkg/metrics"
)

// Transport is the minimal socket surface a Session writes rendered
// commands to. Dialing, TLS negotiation and read buffering belong to the
// caller; the session only ever sees bytes in (via HandleLine) and bytes
// out (via Transport.Write).
type Transport interface {
	Write(p []byte) (int, error)
	Close() error
}

// PasswordStore looks up a previously saved password for a hub, the first
// place a Session checks before asking a Listener for one interactively.
type PasswordStore func(hubURL string) (string, bool)

// UserCounts tallies the hub's online users by category, updated on
// entry into NORMAL and on every subsequent onUserUpdated/onUserQuit.
type UserCounts struct {
	Regular    int
	Registered int
	Operator   int
}

// Listener receives session lifecycle and chat events. Embed
// NoopListener to implement only the methods a caller cares about.
type Listener interface {
	OnStateChanged(old, new State)
	OnPasswordRequired()
	OnNormal(counts UserCounts)
	OnUserUpdated(identity Identity)
	OnUserQuit(shortID string)
	OnChatMessage(msg ChatMessage)
	OnRedirect(url string)
	OnDisconnected(reason string)
	OnFloodSpam(kind flood.Kind, message string)
}

// NoopListener implements Listener with no-ops so callers can embed it
// and override only the events they need.
type NoopListener struct{}

func (NoopListener) OnStateChanged(State, State)    {}
func (NoopListener) OnPasswordRequired()            {}
func (NoopListener) OnNormal(UserCounts)            {}
func (NoopListener) OnUserUpdated(Identity)         {}
func (NoopListener) OnUserQuit(string)              {}
func (NoopListener) OnChatMessage(ChatMessage)      {}
func (NoopListener) OnRedirect(string)              {}
func (NoopListener) OnDisconnected(string)          {}
func (NoopListener) OnFloodSpam(flood.Kind, string) {}

type pendingSearch struct {
	query    SearchQuery
	queuedAt time.Time
}

// Session is one hub connection's state machine. It owns no socket
// itself; connect/disconnect plumbing is the caller's responsibility
// through Transport.
type Session struct {
	mu sync.Mutex

	cfg     Config
	hubURL  string
	adaptor ProtocolAdaptor
	self    Identity

	transport     Transport
	state         State
	autoReconnect bool
	reconnectURL  string

	users map[string]Identity // CID -> identity
	counts UserCounts

	passwordStore PasswordStore
	listeners     []Listener

	ctmFlood    *flood.Counter
	searchFlood *flood.Counter

	pending        []pendingSearch
	lastSearchSent time.Time

	messages *MessageCache

	now          func() time.Time
	reconnectFn  func(delay time.Duration)

	metrics metrics.HubMetrics
}

// NewSession constructs a Session in the DISCONNECTED state for the given
// hub URL and protocol adaptor.
func NewSession(hubURL string, adaptor ProtocolAdaptor, self Identity, cfg Config) *Session {
	ctmFlood := flood.NewCounter()
	ctmFlood.Configure(flood.KindConnect, flood.Limits{
		Period: cfg.FloodPeriod, MinorCount: cfg.CTMMinorLimit, SevereCount: cfg.CTMSevereLimit,
	})
	ctmFlood.Configure(flood.KindConnectMCN, flood.Limits{
		Period: cfg.FloodPeriod, MinorCount: cfg.CTMMCNMinorLimit, SevereCount: cfg.CTMMCNSevereLimit,
	})
	searchFlood := flood.NewCounter()
	searchFlood.Configure(flood.KindSearch, flood.Limits{
		Period: cfg.FloodPeriod, MinorCount: cfg.SearchMinorLimit, SevereCount: cfg.SearchSevereLimit,
	})

	return &Session{
		cfg:         cfg,
		hubURL:      hubURL,
		adaptor:     adaptor,
		self:        self,
		state:       StateDisconnected,
		users:       make(map[string]Identity),
		ctmFlood:    ctmFlood,
		searchFlood: searchFlood,
		messages:    NewMessageCache(cfg.MessageCacheSize),
		now:         time.Now,
	}
}

// AddListener registers l for future session events.
func (s *Session) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// SetMetrics installs a metrics collector. Pass nil to disable.
func (s *Session) SetMetrics(m metrics.HubMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

func (s *Session) metricsLocked() metrics.HubMetrics {
	return s.metrics
}

// metricsSnapshot returns the currently installed metrics collector.
func (s *Session) metricsSnapshot() metrics.HubMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// SetPasswordStore installs the lookup consulted before falling back to
// an interactive OnPasswordRequired event.
func (s *Session) SetPasswordStore(store PasswordStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwordStore = store
}

// SetAutoReconnect toggles whether a socket failure schedules a
// reconnect attempt.
func (s *Session) SetAutoReconnect(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoReconnect = enabled
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect tears down any existing transport, adopts t as the new one, and
// moves the session into CONNECTING then immediately PROTOCOL once t is
// ready to carry traffic (dialing and TLS negotiation already happened
// in the caller).
func (s *Session) Connect(t Transport) {
	s.mu.Lock()
	if s.transport != nil {
		s.transport.Close()
	}
	s.transport = t
	s.setStateLocked(StateConnecting)
	s.setStateLocked(StateProtocol)
	s.mu.Unlock()
}

// HandleLine parses one incoming protocol line and drives the state
// machine from the resulting Event.
func (s *Session) HandleLine(line []byte) {
	event, err := s.adaptor.ParseLine(line)
	if err != nil {
		logger.Warn("hub line parse error", logger.HubURL(s.hubURL), logger.Err(err))
		return
	}
	s.handleEvent(event)
}

func (s *Session) handleEvent(event Event) {
	switch event.Kind {
	case EventConnect:
		s.onHandshakeComplete()
	case EventPassword:
		s.onPasswordRequested()
	case EventHello:
		s.onHello(event)
	case EventUserUpdated:
		s.onUserUpdated(event)
	case EventUserQuit:
		s.onUserQuit(event)
	case EventChatMessage:
		s.onChat(event, false)
	case EventPrivateMessage:
		s.onChat(event, true)
	case EventSearch:
		s.onIncomingSearch(event)
	case EventCTM:
		s.onIncomingCTM(event)
	case EventRedirect:
		s.onRedirect(event)
	case EventFailed:
		s.Disconnect(event.FailReason)
	}
}

func (s *Session) onHandshakeComplete() {
	s.mu.Lock()
	if s.state != StateProtocol {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateIdentify)
	s.mu.Unlock()
}

func (s *Session) onPasswordRequested() {
	s.mu.Lock()
	if s.state != StateIdentify {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateVerify)
	var pw string
	var ok bool
	if s.passwordStore != nil {
		pw, ok = s.passwordStore(s.hubURL)
	}
	listeners := s.snapshotListenersLocked()
	transport := s.transport
	adaptor := s.adaptor
	s.mu.Unlock()

	if ok {
		if transport != nil {
			transport.Write(adaptor.SendPassword(pw))
		}
		return
	}
	for _, l := range listeners {
		l.OnPasswordRequired()
	}
}

// SubmitPassword sends pw in response to a prior OnPasswordRequired
// event.
func (s *Session) SubmitPassword(pw string) {
	s.mu.Lock()
	transport := s.transport
	adaptor := s.adaptor
	s.mu.Unlock()
	if transport != nil {
		transport.Write(adaptor.SendPassword(pw))
	}
}

func (s *Session) onHello(event Event) {
	s.mu.Lock()
	if s.state != StateIdentify && s.state != StateVerify {
		s.mu.Unlock()
		return
	}
	if event.Identity != nil {
		s.users[event.Identity.CID] = *event.Identity
	}
	s.recomputeCountsLocked()
	s.setStateLocked(StateNormal)
	counts := s.counts
	transport := s.transport
	adaptor := s.adaptor
	self := s.self
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	if transport != nil {
		transport.Write(adaptor.SendInfo(self))
	}
	for _, l := range listeners {
		l.OnNormal(counts)
	}
}

func (s *Session) onUserUpdated(event Event) {
	if event.Identity == nil {
		return
	}
	s.mu.Lock()
	s.users[event.Identity.CID] = *event.Identity
	s.recomputeCountsLocked()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnUserUpdated(*event.Identity)
	}
}

func (s *Session) onUserQuit(event Event) {
	s.mu.Lock()
	for cid, u := range s.users {
		if cid == event.ShortID || u.Nick == event.ShortID {
			delete(s.users, cid)
			break
		}
	}
	s.recomputeCountsLocked()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnUserQuit(event.ShortID)
	}
}

func (s *Session) recomputeCountsLocked() {
	var c UserCounts
	for _, u := range s.users {
		c.Regular++
		if u.Operator {
			c.Operator++
		}
	}
	s.counts = c
	metrics.SetUserCount(s.metricsLocked(), s.hubURL, len(s.users), c.Regular)
}

func (s *Session) onChat(event Event, private bool) {
	if event.Chat == nil {
		return
	}
	msg := *event.Chat
	msg.Private = private
	s.messages.Add(msg)

	s.mu.Lock()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnChatMessage(msg)
	}
}

func (s *Session) onRedirect(event Event) {
	s.mu.Lock()
	s.reconnectURL = event.RedirectURL
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnRedirect(event.RedirectURL)
	}
	s.Disconnect("redirect")
}

func (s *Session) onIncomingCTM(event Event) {
	kind := flood.KindConnect
	if event.CTM != nil && event.CTM.User != nil {
		kind = flood.KindConnectMCN
	}
	status := s.ctmFlood.HandleRequest(kind, event.PeerIP)
	s.handleFloodStatus(flood.KindConnect, status, event.PeerIP)
}

func (s *Session) onIncomingSearch(event Event) {
	status := s.searchFlood.HandleRequest(flood.KindSearch, event.PeerIP)
	s.handleFloodStatus(flood.KindSearch, status, event.PeerIP)
}

func (s *Session) handleFloodStatus(kind flood.Kind, status flood.Status, peerIP string) {
	if !status.HitLimit {
		return
	}
	switch status.Severity {
	case flood.SeverityMinor:
		s.mu.Lock()
		listeners := s.snapshotListenersLocked()
		mm := s.metricsLocked()
		s.mu.Unlock()
		metrics.ObserveFloodEvent(mm, s.hubURL, kind.String())
		msg := "connection request spam from " + peerIP
		if kind == flood.KindSearch {
			msg = "search spam from " + peerIP
		}
		for _, l := range listeners {
			l.OnFloodSpam(kind, msg)
		}
	case flood.SeveritySevere:
		metrics.ObserveFloodEvent(s.metricsSnapshot(), s.hubURL, kind.String())
		s.Disconnect("flood")
		s.scheduleReconnect(true)
	}
}

// QueueSearch appends a search request to the outgoing pacing queue.
func (s *Session) QueueSearch(q SearchQuery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pendingSearch{query: q, queuedAt: s.now()})
	metrics.SetPendingSearches(s.metricsLocked(), s.hubURL, len(s.pending))
}

// Tick drives the session's 1-second housekeeping: popping and sending
// the highest-priority due outgoing search. It does not reconnect a
// disconnected session; reconnects go through the function set with
// SetReconnectFunc.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	if s.state != StateNormal || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	if now.Sub(s.lastSearchSent) < s.cfg.SearchInterval {
		s.mu.Unlock()
		return
	}

	best := 0
	for i, p := range s.pending {
		if p.query.Priority > s.pending[best].query.Priority {
			best = i
		}
	}
	chosen := s.pending[best]
	s.pending = append(s.pending[:best], s.pending[best+1:]...)
	s.lastSearchSent = now
	transport := s.transport
	adaptor := s.adaptor
	mm := s.metricsLocked()
	metrics.SetPendingSearches(mm, s.hubURL, len(s.pending))
	s.mu.Unlock()

	if transport != nil {
		transport.Write(adaptor.SendSearch(chosen.query))
		metrics.ObserveSearchSent(mm, s.hubURL)
	}
}

// PendingSearches reports how many outgoing searches are queued but not
// yet sent.
func (s *Session) PendingSearches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SendMessage renders and writes a chat message if the session is
// currently NORMAL.
func (s *Session) SendMessage(text string, thirdPerson bool) {
	s.mu.Lock()
	if s.state != StateNormal {
		s.mu.Unlock()
		return
	}
	transport := s.transport
	adaptor := s.adaptor
	s.mu.Unlock()
	if transport != nil {
		transport.Write(adaptor.SendMessage(text, thirdPerson))
	}
}

// Disconnect tears down the session's transport and moves it to
// DISCONNECTED, scheduling a reconnect if auto-reconnect is armed.
func (s *Session) Disconnect(reason string) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	s.users = make(map[string]Identity)
	s.counts = UserCounts{}
	s.setStateLocked(StateDisconnected)
	auto := s.autoReconnect
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnDisconnected(reason)
	}
	if auto && reason != "flood" {
		s.scheduleReconnect(false)
	}
}

// scheduleReconnect computes the delay per the reconnect-timing contract
// and invokes reconnectFn, if one is set, immediately with that delay
// as its argument; waiting out the delay is up to reconnectFn. Callers that
// want the scheduling done for them should set Session.reconnectFn via
// SetReconnectFunc; this package does not start its own timer goroutine
// so callers remain in control of how retries are driven.
func (s *Session) scheduleReconnect(severe bool) {
	s.mu.Lock()
	fn := s.reconnectFn
	mm := s.metrics
	s.mu.Unlock()
	metrics.ObserveReconnect(mm, s.hubURL, severe)
	if fn == nil {
		return
	}
	fn(s.reconnectDelay(severe))
}

// reconnectDelay returns a randomized delay per the [120,180]s +
// jitter(0..60s) rule, or the fixed severe-flood delay.
func (s *Session) reconnectDelay(severe bool) time.Duration {
	if severe {
		return s.cfg.SevereFloodReconnectDelay
	}
	span := int64(s.cfg.ReconnectDelayMax - s.cfg.ReconnectDelayMin)
	base := s.cfg.ReconnectDelayMin
	if span > 0 {
		base += time.Duration(rand.Int63n(span))
	}
	jitter := time.Duration(0)
	if s.cfg.ReconnectJitterMax > 0 {
		jitter = time.Duration(rand.Int63n(int64(s.cfg.ReconnectJitterMax)))
	}
	return base + jitter
}

// SetReconnectFunc installs the callback scheduleReconnect invokes with
// the computed delay. Left nil, automatic reconnects are not scheduled
// (the caller can still poll State() and call Connect() itself).
func (s *Session) SetReconnectFunc(fn func(delay time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectFn = fn
}

func (s *Session) setStateLocked(newState State) {
	old := s.state
	s.state = newState
	listeners := s.snapshotListenersLocked()
	metrics.ObserveStateTransition(s.metricsLocked(), s.hubURL, old.String(), newState.String())
	logger.Debug("hub state transition",
		logger.HubURL(s.hubURL),
		logger.HubState(newState.String()),
	)
	for _, l := range listeners {
		l.OnStateChanged(old, newState)
	}
}

func (s *Session) snapshotListenersLocked() []Listener {
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

// Messages returns the session's recent chat message cache.
func (s *Session) Messages() *MessageCache {
	return s.messages
}

// UserCount returns the current tally of online users by category.
func (s *Session) UserCount() UserCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}
