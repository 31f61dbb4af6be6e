// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"net"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"

	"github.com/llxmpp/llxmpp-go/pkg/service"
	"github.com/llxmpp/llxmpp-go/pkg/stanza"
)

// WsMessage is the JSON frame exchanged with WebSocket clients. Inbound
// frames carry To, outbound ones From.
type WsMessage struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Body string `json:"body"`
}

// WebsocketAgent streams received chat messages to every connected client
// and sends frames written by clients as chat messages.
type WebsocketAgent struct {
	srv *service.Service

	listener   net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader

	clientMu sync.Mutex
	clients  map[*websocket.Conn]struct{}

	incoming chan *stanza.Message

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewWebsocketAgent starts a WebSocket agent listening on the given address.
// The WebSocket endpoint is /ws.
func NewWebsocketAgent(address string, srv *service.Service) (wa *WebsocketAgent, err error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	httpMux := http.NewServeMux()
	httpServer := &http.Server{Handler: httpMux}

	wa = &WebsocketAgent{
		srv:        srv,
		listener:   listener,
		httpServer: httpServer,
		upgrader:   websocket.Upgrader{},
		clients:    make(map[*websocket.Conn]struct{}),
		incoming:   make(chan *stanza.Message, 32),
		stopSyn:    make(chan struct{}),
		stopAck:    make(chan struct{}),
	}

	httpMux.HandleFunc("/ws", wa.websocketHandler)

	srv.AddPacketListener(wa, stanza.And(
		stanza.IsMessage,
		stanza.MessageTypeIs(stanza.MessageChat, stanza.MessageNormal)))

	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			wa.log().WithError(serveErr).Error("WebsocketAgent's HTTP server failed")
		}
	}()
	go wa.handler()

	return wa, nil
}

func (wa *WebsocketAgent) log() *log.Entry {
	return log.WithField("WebsocketAgent", wa.Address())
}

// Address returns the bound listen address.
func (wa *WebsocketAgent) Address() string {
	return wa.listener.Addr().String()
}

// ProcessPacket implements service.PacketListener.
func (wa *WebsocketAgent) ProcessPacket(p stanza.Packet) {
	msg := p.(*stanza.Message)
	if msg.Body == "" {
		return
	}

	select {
	case wa.incoming <- msg:
	case <-wa.stopSyn:
	}
}

// handler broadcasts received messages to every connected client.
func (wa *WebsocketAgent) handler() {
	defer close(wa.stopAck)

	for {
		select {
		case <-wa.stopSyn:
			return

		case msg := <-wa.incoming:
			frame := WsMessage{From: msg.From(), Body: msg.Body}

			wa.clientMu.Lock()
			for client := range wa.clients {
				if err := client.WriteJSON(frame); err != nil {
					wa.log().WithError(err).Debug("Dropping broken WebSocket client")

					_ = client.Close()
					delete(wa.clients, client)
				}
			}
			wa.clientMu.Unlock()
		}
	}
}

func (wa *WebsocketAgent) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wa.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wa.log().WithError(err).Warn("Upgrading HTTP connection failed")
		return
	}

	wa.clientMu.Lock()
	wa.clients[conn] = struct{}{}
	wa.clientMu.Unlock()

	wa.log().WithField("client", conn.RemoteAddr()).Debug("WebSocket client connected")

	go wa.readLoop(conn)
}

// readLoop sends client frames as chat messages until the client hangs up.
func (wa *WebsocketAgent) readLoop(conn *websocket.Conn) {
	defer func() {
		wa.clientMu.Lock()
		delete(wa.clients, conn)
		wa.clientMu.Unlock()

		_ = conn.Close()
	}()

	for {
		var frame WsMessage
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.To == "" {
			continue
		}

		msg := stanza.NewMessage(frame.To, stanza.MessageChat)
		msg.Body = frame.Body

		if err := wa.srv.SendPacket(msg); err != nil {
			wa.log().WithError(err).WithField("to", frame.To).
				Warn("Failed to send message for WebSocket client")
		}
	}
}

// Close shuts the agent down and disconnects every client.
func (wa *WebsocketAgent) Close() error {
	wa.srv.RemovePacketListener(wa)

	close(wa.stopSyn)
	<-wa.stopAck

	wa.clientMu.Lock()
	for client := range wa.clients {
		_ = client.Close()
	}
	wa.clients = make(map[*websocket.Conn]struct{})
	wa.clientMu.Unlock()

	return wa.httpServer.Close()
}
