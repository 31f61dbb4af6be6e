// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/llxmpp/llxmpp-go/pkg/presence"
	"github.com/llxmpp/llxmpp-go/pkg/stanza"
)

const (
	// queueSize bounds the per-stream outbound stanza queue.
	queueSize = 500

	// idleTimeout is how long a stream may stay without traffic. Peers on a
	// link may vanish without a FIN, the timeout reaps those zombies.
	idleTimeout = 15 * time.Second

	// idleTick is the watchdog poll interval.
	idleTick = 14 * time.Second

	// drainTimeout bounds the best-effort queue flush during teardown.
	drainTimeout = 150 * time.Millisecond

	// dialTimeout bounds the TCP connect to a link-local peer.
	dialTimeout = time.Second

	// openTimeout bounds the whole stream open handshake.
	openTimeout = 5 * time.Second
)

var (
	// ErrClosed is returned when sending on a stream that is shutting down.
	ErrClosed = errors.New("stream is closed")

	// ErrUnknownPeer terminates a responder stream whose remote service
	// name has no presence on the link.
	ErrUnknownPeer = errors.New("remote service name has no known presence")

	// ErrMissingFrom terminates a responder stream whose opening header did
	// not identify the remote peer.
	ErrMissingFrom = errors.New("inbound stream header carries no from attribute")
)

// Handler is the stream's back-reference into the session service. The
// stream never owns its handler; the service owns the stream.
type Handler interface {
	// LookupPresence resolves a remote service name against the presence
	// store.
	LookupPresence(serviceName string) (*presence.Presence, bool)

	// Receive hands an inbound stanza to the service for dispatch.
	Receive(s *Stream, p stanza.Packet)

	// Opened reports a stream that finished its header exchange.
	Opened(s *Stream)

	// Closed reports a terminated stream. err is nil for an orderly close.
	Closed(s *Stream, err error)
}

// Stream is one XMPP stream over one TCP connection to one remote peer.
type Stream struct {
	conn net.Conn
	bw   *bufio.Writer

	initiator bool
	localName string

	mu         sync.RWMutex
	remoteName string
	remote     *presence.Presence

	state        int32 // State, atomic
	lastActivity int64 // unix nanoseconds, atomic

	handler Handler

	outChnl chan stanza.Packet
	opened  chan error

	stopSyn       chan struct{}
	stopAck       chan struct{}
	writerRunning int32
	closeOnce     sync.Once

	idleTimeout  time.Duration
	idleTick     time.Duration
	drainTimeout time.Duration
}

// Dial opens an initiator stream to the given remote presence. It blocks
// until the stream header exchange completed or failed.
func Dial(localName string, remote *presence.Presence, handler Handler) (*Stream, error) {
	addr := net.JoinHostPort(remote.Host(), fmt.Sprintf("%d", remote.Port()))

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	s := newStream(conn, localName, handler, true)
	s.remoteName = remote.ServiceName()
	s.remote = remote
	s.setState(StateConnecting)

	if err = writeHeader(s.bw, s.remoteName, localName); err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("writing stream header: %w", err)
	}

	go s.reader()

	select {
	case err := <-s.opened:
		if err != nil {
			return nil, err
		}
		return s, nil

	case <-time.After(openTimeout):
		s.closeOnError(fmt.Errorf("stream open timed out"))
		return nil, fmt.Errorf("stream open to %s timed out", s.remoteName)
	}
}

// Accept wraps an inbound TCP connection into a responder stream. The
// remote service name is unknown until the opening header arrives; the
// handler learns about the stream through Opened or Closed.
func Accept(conn net.Conn, localName string, handler Handler) *Stream {
	s := newStream(conn, localName, handler, false)
	s.setState(StateAwaitingHeader)

	go s.reader()

	return s
}

func newStream(conn net.Conn, localName string, handler Handler, initiator bool) *Stream {
	s := &Stream{
		conn:      conn,
		bw:        bufio.NewWriter(conn),
		initiator: initiator,
		localName: localName,
		handler:   handler,

		outChnl: make(chan stanza.Packet, queueSize),
		opened:  make(chan error, 1),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),

		idleTimeout:  idleTimeout,
		idleTick:     idleTick,
		drainTimeout: drainTimeout,
	}
	s.touch()

	return s
}

func (s *Stream) String() string {
	role := "responder"
	if s.initiator {
		role = "initiator"
	}

	return fmt.Sprintf("Stream(%s,peer=%s)", role, s.RemoteServiceName())
}

func (s *Stream) log() *log.Entry {
	return log.WithFields(log.Fields{
		"stream": s,
		"state":  s.State(),
	})
}

// IsInitiator reports whether the local side dialed this stream.
func (s *Stream) IsInitiator() bool {
	return s.initiator
}

// State returns the current life cycle state.
func (s *Stream) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Stream) setState(next State) {
	atomic.StoreInt32(&s.state, int32(next))
}

// RemoteServiceName returns the peer's service name, or an empty string on a
// responder stream whose header has not arrived yet.
func (s *Stream) RemoteServiceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteName
}

// RemotePresence returns the peer's presence once the stream knows it.
func (s *Stream) RemotePresence() *presence.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote
}

// LastActivity returns the time of the most recent successful read or write.
func (s *Stream) LastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.lastActivity))
}

func (s *Stream) touch() {
	atomic.StoreInt64(&s.lastActivity, time.Now().UnixNano())
}

// SendPacket enqueues a stanza for in-order transmission. It blocks while
// the bounded queue is full and fails once the stream closes.
func (s *Stream) SendPacket(p stanza.Packet) error {
	if s.State().terminal() {
		return ErrClosed
	}

	select {
	case s.outChnl <- p:
		return nil
	case <-s.stopSyn:
		return ErrClosed
	}
}

// Close tears the stream down orderly: drain the queue best-effort, emit the
// closing tag, close the socket.
func (s *Stream) Close() {
	s.shutdown(StateClosed, nil)
}

func (s *Stream) closeOnError(err error) {
	s.shutdown(StateClosedErr, err)
}

func (s *Stream) shutdown(final State, err error) {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		close(s.stopSyn)

		if atomic.LoadInt32(&s.writerRunning) == 1 {
			<-s.stopAck
		} else {
			_ = s.conn.Close()
		}

		s.setState(final)

		if err != nil {
			s.log().WithError(err).Debug("Stream closed on error")
		} else {
			s.log().Debug("Stream closed")
		}

		s.handler.Closed(s, err)
	})
}

// reader runs the pull parser: first the stream header, then the stanza
// loop. It is the only goroutine touching the connection's read side.
func (s *Stream) reader() {
	dec := xml.NewDecoder(bufio.NewReader(s.conn))

	if err := s.awaitHeader(dec); err != nil {
		s.opened <- err
		s.closeOnError(err)
		return
	}

	s.setState(StateOpen)
	s.startWriter()
	go s.watchdog()

	s.opened <- nil
	s.handler.Opened(s)

	s.stanzaLoop(dec)
}

// awaitHeader parses the remote opening header. A responder additionally
// learns the remote service name here, verifies it against the presence
// store and answers with its own header.
func (s *Stream) awaitHeader(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading stream header: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		h, err := parseHeader(start)
		if err != nil {
			return err
		}
		s.touch()

		if s.initiator {
			return nil
		}

		if h.from == "" {
			return ErrMissingFrom
		}
		if h.to != "" && h.to != s.localName {
			s.log().WithField("to", h.to).Warn("Inbound stream addresses a different service name")
		}

		remote, known := s.handler.LookupPresence(h.from)
		if !known {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, h.from)
		}

		s.mu.Lock()
		s.remoteName = h.from
		s.remote = remote
		s.mu.Unlock()

		if err := writeHeader(s.bw, h.from, s.localName); err == nil {
			err = s.bw.Flush()
		}
		if err != nil {
			return fmt.Errorf("answering stream header: %w", err)
		}

		return nil
	}
}

func (s *Stream) stanzaLoop(dec *xml.Decoder) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if s.State() == StateClosing || s.State().terminal() {
				return
			}
			s.closeOnError(fmt.Errorf("stream read: %w", err))
			return
		}
		s.touch()

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "error" {
				streamErr := new(stanza.StreamError)
				_ = dec.DecodeElement(streamErr, &t)
				s.closeOnError(streamErr)
				return
			}

			pkt, perr := stanza.Parse(dec, t)
			if perr != nil {
				s.closeOnError(perr)
				return
			}

			s.handler.Receive(s, pkt)

		case xml.EndElement:
			// the matching </stream:stream>
			s.Close()
			return
		}
	}
}

func (s *Stream) startWriter() {
	atomic.StoreInt32(&s.writerRunning, 1)
	go s.writer()
}

// writer serializes stanzas from the bounded queue in order. It owns the
// connection's write side and the final socket close.
func (s *Stream) writer() {
	defer func() {
		_ = s.conn.Close()
		close(s.stopAck)
	}()

	for {
		select {
		case <-s.stopSyn:
			s.drainQueue()
			return

		case pkt := <-s.outChnl:
			if err := s.writePacket(pkt); err != nil {
				s.log().WithError(err).Warn("Stream writer failed")

				go s.closeOnError(err)
				return
			}
		}
	}
}

// drainQueue flushes pending stanzas best-effort within drainTimeout and
// emits the closing stream tag.
func (s *Stream) drainQueue() {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.drainTimeout))

	for {
		select {
		case pkt := <-s.outChnl:
			if err := s.writePacket(pkt); err != nil {
				return
			}

		default:
			_, _ = s.bw.WriteString("</stream:stream>")
			_ = s.bw.Flush()
			return
		}
	}
}

func (s *Stream) writePacket(pkt stanza.Packet) error {
	raw, err := stanza.Render(pkt)
	if err != nil {
		return err
	}

	if _, err := s.bw.WriteString(raw); err != nil {
		return err
	}
	if err := s.bw.Flush(); err != nil {
		return err
	}

	s.touch()
	return nil
}

// watchdog polls the activity timestamp and reaps the stream when it idled
// out. It terminates through the stop channel, never by observing some
// nullable back-reference.
func (s *Stream) watchdog() {
	ticker := time.NewTicker(s.idleTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSyn:
			return

		case <-ticker.C:
			if time.Since(s.LastActivity()) > s.idleTimeout {
				s.log().Debug("Stream idled out")
				s.Close()
				return
			}
		}
	}
}
