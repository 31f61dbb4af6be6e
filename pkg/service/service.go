// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hashicorp/go-multierror"

	"github.com/llxmpp/llxmpp-go/pkg/discovery"
	"github.com/llxmpp/llxmpp-go/pkg/presence"
	"github.com/llxmpp/llxmpp-go/pkg/stanza"
	"github.com/llxmpp/llxmpp-go/pkg/stream"
)

const (
	// DefaultMinPort and DefaultMaxPort bound the listen port search.
	DefaultMinPort = 2300
	DefaultMaxPort = 2400

	// DefaultReplyTimeout is how long GetIQResponse waits for an answer.
	DefaultReplyTimeout = 5 * time.Second

	// acceptTick is the poll interval of the acceptor loop.
	acceptTick = 50 * time.Millisecond
)

// StateListener is notified about service level events.
type StateListener interface {
	// ServiceClosed fires after an orderly Close.
	ServiceClosed()

	// ServiceClosedOnError fires when the listening socket broke down.
	ServiceClosedOnError(err error)

	// UnknownOriginMessage fires for a message whose sender has no known
	// presence; the message is dropped afterwards.
	UnknownOriginMessage(msg *stanza.Message)

	// ServiceNameChanged fires when registration renamed the local service.
	ServiceNameChanged(newName, oldName string)
}

// ConnectionListener is notified about stream life cycle events of this
// service.
type ConnectionListener interface {
	ConnectionCreated(s *stream.Stream)
	ConnectionClosed(s *stream.Stream)
	ConnectionClosedOnError(s *stream.Stream, err error)
}

// PacketListener processes stanzas its filter accepted. Callbacks run on the
// service's dispatcher goroutine, in wire order per stream.
type PacketListener interface {
	ProcessPacket(p stanza.Packet)
}

type listenerEntry struct {
	listener PacketListener
	filter   stanza.Filter
}

type dispatchItem struct {
	src *stream.Stream
	pkt stanza.Packet
}

// Option adjusts a Service at construction time.
type Option func(*Service)

// WithPortRange overrides the default [2300, 2400] listen range.
func WithPortRange(min, max int) Option {
	return func(srv *Service) {
		srv.minPort, srv.maxPort = min, max
	}
}

// WithReplyTimeout overrides the default IQ reply timeout.
func WithReplyTimeout(d time.Duration) Option {
	return func(srv *Service) {
		srv.replyTimeout = d
	}
}

// Service is one link-local XMPP presence: it owns the local presence, the
// presence store, the listening socket, all peer streams and the dispatch
// machinery on top of them.
type Service struct {
	local *presence.Presence
	store *presence.Store
	disc  discovery.Discoverer

	minPort, maxPort int
	replyTimeout     time.Duration

	listener *net.TCPListener

	// inbound holds responder streams, outbound initiator streams, both
	// keyed by remote service name. During a concurrent-dial race the same
	// peer may appear in both; outbound wins on lookup.
	inbound  sync.Map
	outbound sync.Map

	chats sync.Map // string -> *Chat

	chatListenerMu sync.RWMutex
	chatListeners  []ChatListener

	listenerMu      sync.RWMutex
	packetListeners []listenerEntry

	collectorMu sync.RWMutex
	collectors  map[*Collector]struct{}

	notifyMu       sync.RWMutex
	stateListeners []StateListener
	connListeners  []ConnectionListener

	dispatchChnl chan dispatchItem

	started int32
	closed  int32
	stopSyn chan struct{}
	wg      sync.WaitGroup
}

// New creates a Service around the given local presence and discovery
// adapter. Nothing touches the network before Start.
func New(local *presence.Presence, disc discovery.Discoverer, opts ...Option) *Service {
	srv := &Service{
		local: local,
		store: presence.NewStore(),
		disc:  disc,

		minPort:      DefaultMinPort,
		maxPort:      DefaultMaxPort,
		replyTimeout: DefaultReplyTimeout,

		collectors:   make(map[*Collector]struct{}),
		dispatchChnl: make(chan dispatchItem, 64),
		stopSyn:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

func (srv *Service) log() *log.Entry {
	return log.WithField("service", srv.LocalServiceName())
}

// LocalServiceName returns the service name this presence is registered
// under, after any collision rename.
func (srv *Service) LocalServiceName() string {
	return srv.local.ServiceName()
}

// LocalPresence returns the local presence owned by this service.
func (srv *Service) LocalPresence() *presence.Presence {
	return srv.local
}

// Store returns the presence store of remote peers.
func (srv *Service) Store() *presence.Store {
	return srv.store
}

// Start binds the listening socket, registers the local presence with the
// mDNS daemon, starts browsing for peers and begins accepting connections.
func (srv *Service) Start() error {
	if !atomic.CompareAndSwapInt32(&srv.started, 0, 1) {
		return fmt.Errorf("service was already started")
	}

	ln, port, err := bindRange(srv.minPort, srv.maxPort)
	if err != nil {
		return err
	}
	srv.listener = ln
	srv.local.SetPort(port)

	requested := srv.local.ServiceName()
	accepted, err := srv.disc.Register(srv.local)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("registering presence: %w", err)
	}

	if accepted != requested {
		srv.local.SetServiceName(accepted)
		srv.eachStateListener(func(l StateListener) {
			l.ServiceNameChanged(accepted, requested)
		})
	}

	if err := srv.disc.Browse(&storeObserver{srv: srv}); err != nil {
		_ = srv.disc.Unregister()
		_ = ln.Close()
		return fmt.Errorf("browsing for peers: %w", err)
	}

	srv.wg.Add(2)
	go srv.acceptor()
	go srv.dispatcher()

	srv.log().WithField("port", port).Info("Link-local service started")

	return nil
}

// bindRange binds the first free port within [min, max].
func bindRange(min, max int) (*net.TCPListener, int, error) {
	for port := min; port <= max; port++ {
		addr := &net.TCPAddr{Port: port}
		if ln, err := net.ListenTCP("tcp", addr); err == nil {
			return ln, port, nil
		}
	}

	return nil, 0, ErrBindFailed
}

// acceptor waits for inbound connections and wraps each into a responder
// stream. Streams handle their header exchange on their own goroutines, so
// two peers connecting at once do not block each other.
func (srv *Service) acceptor() {
	defer srv.wg.Done()

	for {
		select {
		case <-srv.stopSyn:
			_ = srv.listener.Close()
			return

		default:
			if err := srv.listener.SetDeadline(time.Now().Add(acceptTick)); err != nil {
				srv.log().WithError(err).Error("Failed to set deadline on listening socket")

				srv.eachStateListener(func(l StateListener) {
					l.ServiceClosedOnError(err)
				})
				return
			} else if conn, err := srv.listener.Accept(); err == nil {
				stream.Accept(conn, srv.LocalServiceName(), srv)
			}
		}
	}
}

// storeObserver feeds discovery events into the presence store.
type storeObserver struct {
	srv *Service
}

func (obs *storeObserver) ServiceAdded(name string) {
	log.WithField("peer", name).Debug("Peer sighted, awaiting resolution")
}

func (obs *storeObserver) ServiceRemoved(name string) {
	obs.srv.store.Remove(name)
}

func (obs *storeObserver) ServiceResolved(name, host string, port int, records []presence.Record) {
	if name == obs.srv.LocalServiceName() {
		return
	}

	obs.srv.store.Put(presence.FromRecords(name, host, port, records))
}

// LookupPresence implements stream.Handler.
func (srv *Service) LookupPresence(serviceName string) (*presence.Presence, bool) {
	return srv.store.Get(serviceName)
}

// Receive implements stream.Handler, feeding the per-service dispatcher.
func (srv *Service) Receive(s *stream.Stream, p stanza.Packet) {
	select {
	case srv.dispatchChnl <- dispatchItem{src: s, pkt: p}:
	case <-srv.stopSyn:
	}
}

// Opened implements stream.Handler, recording the fresh stream in the map
// matching its direction.
func (srv *Service) Opened(s *stream.Stream) {
	name := s.RemoteServiceName()

	if s.IsInitiator() {
		srv.outbound.Store(name, s)
	} else {
		srv.inbound.Store(name, s)
	}

	srv.log().WithFields(log.Fields{
		"peer":      name,
		"initiator": s.IsInitiator(),
	}).Debug("Stream opened")

	srv.eachConnListener(func(l ConnectionListener) {
		l.ConnectionCreated(s)
	})
}

// Closed implements stream.Handler, dropping the stream from its map. The
// map entry is only removed when it still points at this very stream; during
// a concurrent-dial race a newer stream may have taken the slot.
func (srv *Service) Closed(s *stream.Stream, err error) {
	if name := s.RemoteServiceName(); name != "" {
		if s.IsInitiator() {
			srv.outbound.CompareAndDelete(name, s)
		} else {
			srv.inbound.CompareAndDelete(name, s)
		}
	}

	srv.eachConnListener(func(l ConnectionListener) {
		if err != nil {
			l.ConnectionClosedOnError(s, err)
		} else {
			l.ConnectionClosed(s)
		}
	})
}

// connectionTo returns an open stream to the peer, preferring the outbound
// one so both sides of a concurrent-dial race converge on the same
// direction.
func (srv *Service) connectionTo(serviceName string) *stream.Stream {
	if v, ok := srv.outbound.Load(serviceName); ok {
		if s := v.(*stream.Stream); s.State() == stream.StateOpen {
			return s
		}
	}
	if v, ok := srv.inbound.Load(serviceName); ok {
		if s := v.(*stream.Stream); s.State() == stream.StateOpen {
			return s
		}
	}

	return nil
}

// Connections returns a snapshot of all live streams.
func (srv *Service) Connections() []*stream.Stream {
	var all []*stream.Stream

	srv.outbound.Range(func(_, v interface{}) bool {
		all = append(all, v.(*stream.Stream))
		return true
	})
	srv.inbound.Range(func(_, v interface{}) bool {
		all = append(all, v.(*stream.Stream))
		return true
	})

	return all
}

// GetConnection returns an established stream to the peer, dialing a new one
// when none exists. Fails with ErrPeerUnavailable for unknown peers.
func (srv *Service) GetConnection(serviceName string) (*stream.Stream, error) {
	if s := srv.connectionTo(serviceName); s != nil {
		return s, nil
	}

	p, known := srv.store.Get(serviceName)
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnavailable, serviceName)
	}

	s, err := stream.Dial(srv.LocalServiceName(), p, srv)
	if err != nil {
		return nil, err
	}

	srv.outbound.Store(serviceName, s)
	return s, nil
}

// SendPacket stamps the local service name as sender and transmits the
// stanza, dialing or re-dialing the peer as needed.
func (srv *Service) SendPacket(pkt stanza.Packet) error {
	if atomic.LoadInt32(&srv.closed) == 1 {
		return ErrServiceClosed
	}

	pkt.SetFrom(srv.LocalServiceName())
	if pkt.ID() == "" {
		pkt.SetID(stanza.NewID())
	}

	to := pkt.To()

	s, err := srv.GetConnection(to)
	if err != nil {
		return err
	}

	if err := s.SendPacket(pkt); err == nil {
		return nil
	}

	// The stream died under us; retire it and try once over a fresh one.
	srv.retire(to, s)

	s, err = srv.GetConnection(to)
	if err != nil {
		return err
	}

	return s.SendPacket(pkt)
}

func (srv *Service) retire(serviceName string, s *stream.Stream) {
	srv.outbound.CompareAndDelete(serviceName, s)
	srv.inbound.CompareAndDelete(serviceName, s)
}

// GetChat returns the chat session for a peer, creating it on first use.
func (srv *Service) GetChat(serviceName string) (*Chat, error) {
	if v, ok := srv.chats.Load(serviceName); ok {
		return v.(*Chat), nil
	}

	if _, known := srv.store.Get(serviceName); !known {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnavailable, serviceName)
	}

	chat := newChat(srv, serviceName)
	if actual, loaded := srv.chats.LoadOrStore(serviceName, chat); loaded {
		return actual.(*Chat), nil
	}

	srv.eachChatListener(func(l ChatListener) {
		l.NewChat(chat)
	})

	return chat, nil
}

// GetIQResponse sends an IQ request and waits for the matching answer. The
// reply is accepted from any stream, it may well arrive on a connection the
// peer dialed back after an idle close.
func (srv *Service) GetIQResponse(request *stanza.IQ) (*stanza.IQ, error) {
	collector := srv.CreateCollector(stanza.ReplyFilter(request))
	defer collector.Cancel()

	if err := srv.SendPacket(request); err != nil {
		return nil, err
	}

	pkt, err := collector.Next(srv.replyTimeout)
	if err != nil {
		return nil, err
	}

	return pkt.(*stanza.IQ), nil
}

// CreateCollector subscribes a new collector to all stanzas of this service.
func (srv *Service) CreateCollector(filter stanza.Filter) *Collector {
	c := newCollector(srv, filter)

	srv.collectorMu.Lock()
	srv.collectors[c] = struct{}{}
	srv.collectorMu.Unlock()

	return c
}

func (srv *Service) removeCollector(c *Collector) {
	srv.collectorMu.Lock()
	delete(srv.collectors, c)
	srv.collectorMu.Unlock()
}

// AddPacketListener registers a filtered listener for stanzas from all
// current and future streams.
func (srv *Service) AddPacketListener(l PacketListener, filter stanza.Filter) {
	srv.listenerMu.Lock()
	srv.packetListeners = append(srv.packetListeners, listenerEntry{listener: l, filter: filter})
	srv.listenerMu.Unlock()
}

// RemovePacketListener drops a listener again.
func (srv *Service) RemovePacketListener(l PacketListener) {
	srv.listenerMu.Lock()
	defer srv.listenerMu.Unlock()

	for i, entry := range srv.packetListeners {
		if entry.listener == l {
			srv.packetListeners = append(srv.packetListeners[:i], srv.packetListeners[i+1:]...)
			return
		}
	}
}

// AddStateListener registers a service state listener.
func (srv *Service) AddStateListener(l StateListener) {
	srv.notifyMu.Lock()
	srv.stateListeners = append(srv.stateListeners, l)
	srv.notifyMu.Unlock()
}

// AddConnectionListener registers a stream life cycle listener.
func (srv *Service) AddConnectionListener(l ConnectionListener) {
	srv.notifyMu.Lock()
	srv.connListeners = append(srv.connListeners, l)
	srv.notifyMu.Unlock()
}

// AddChatListener registers a listener for newly created chat sessions.
func (srv *Service) AddChatListener(l ChatListener) {
	srv.chatListenerMu.Lock()
	srv.chatListeners = append(srv.chatListeners, l)
	srv.chatListenerMu.Unlock()
}

// UpdatePresence folds new presence data into the local presence and, once
// started, updates the TXT records and reannounces the service.
func (srv *Service) UpdatePresence(p *presence.Presence) error {
	if p != srv.local {
		srv.local.Update(p)
	}

	if atomic.LoadInt32(&srv.started) == 0 {
		return nil
	}

	if err := srv.disc.UpdateText(srv.local.ToRecords()); err != nil {
		return err
	}

	return srv.disc.Reannounce()
}

// Close shuts the service down: the presence is withdrawn, the listening
// socket and every stream are closed, collectors are cancelled. Errors along
// the way are collected, the teardown always runs to the end.
func (srv *Service) Close() error {
	if !atomic.CompareAndSwapInt32(&srv.closed, 0, 1) {
		return nil
	}

	var errs *multierror.Error

	if atomic.LoadInt32(&srv.started) == 1 {
		if err := srv.disc.Unregister(); err != nil && !errors.Is(err, discovery.ErrNotRegistered) {
			errs = multierror.Append(errs, err)
		}
		if err := srv.disc.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	close(srv.stopSyn)

	srv.collectorMu.Lock()
	pending := make([]*Collector, 0, len(srv.collectors))
	for c := range srv.collectors {
		pending = append(pending, c)
	}
	srv.collectorMu.Unlock()
	for _, c := range pending {
		c.Cancel()
	}

	for _, s := range srv.Connections() {
		s.Close()
	}

	srv.wg.Wait()

	srv.eachStateListener(func(l StateListener) {
		l.ServiceClosed()
	})

	srv.log().Info("Link-local service closed")

	return errs.ErrorOrNil()
}

func (srv *Service) eachStateListener(f func(StateListener)) {
	srv.notifyMu.RLock()
	snapshot := make([]StateListener, len(srv.stateListeners))
	copy(snapshot, srv.stateListeners)
	srv.notifyMu.RUnlock()

	for _, l := range snapshot {
		f(l)
	}
}

func (srv *Service) eachConnListener(f func(ConnectionListener)) {
	srv.notifyMu.RLock()
	snapshot := make([]ConnectionListener, len(srv.connListeners))
	copy(snapshot, srv.connListeners)
	srv.notifyMu.RUnlock()

	for _, l := range snapshot {
		f(l)
	}
}

func (srv *Service) eachChatListener(f func(ChatListener)) {
	srv.chatListenerMu.RLock()
	snapshot := make([]ChatListener, len(srv.chatListeners))
	copy(snapshot, srv.chatListeners)
	srv.chatListenerMu.RUnlock()

	for _, l := range snapshot {
		f(l)
	}
}
