// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"encoding/json"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"

	"github.com/llxmpp/llxmpp-go/pkg/service"
	"github.com/llxmpp/llxmpp-go/pkg/stanza"
)

// RestSendRequest asks the agent to deliver a chat message.
type RestSendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// RestSendResponse reports the outcome of a send.
type RestSendResponse struct {
	Error string `json:"error,omitempty"`
}

// RestMessage is one received chat message.
type RestMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// RestPresence is one entry of the presence listing.
type RestPresence struct {
	ServiceName string `json:"serviceName"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Status      string `json:"status"`
	Msg         string `json:"msg,omitempty"`
}

// RestAgent is a RESTful application agent: messages can be sent and fetched
// and the presence store inspected over plain HTTP.
type RestAgent struct {
	router *mux.Router
	srv    *service.Service

	mailboxMu sync.Mutex
	mailbox   map[string][]RestMessage
}

// NewRestAgent mounts the agent's routes on the given router and subscribes
// it to the service's chat traffic.
func NewRestAgent(router *mux.Router, srv *service.Service) (ra *RestAgent) {
	ra = &RestAgent{
		router:  router,
		srv:     srv,
		mailbox: make(map[string][]RestMessage),
	}

	ra.router.HandleFunc("/send", ra.handleSend).Methods(http.MethodPost)
	ra.router.HandleFunc("/presences", ra.handlePresences).Methods(http.MethodGet)
	ra.router.HandleFunc("/messages/{service}", ra.handleMessages).Methods(http.MethodGet)

	srv.AddPacketListener(ra, stanza.And(
		stanza.IsMessage,
		stanza.MessageTypeIs(stanza.MessageChat, stanza.MessageNormal)))

	return ra
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (ra *RestAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ra.router.ServeHTTP(w, r)
}

// ProcessPacket implements service.PacketListener, filing inbound chat
// messages into the per-peer mailbox.
func (ra *RestAgent) ProcessPacket(p stanza.Packet) {
	msg := p.(*stanza.Message)
	if msg.Body == "" {
		return
	}

	ra.mailboxMu.Lock()
	ra.mailbox[msg.From()] = append(ra.mailbox[msg.From()],
		RestMessage{From: msg.From(), Body: msg.Body})
	ra.mailboxMu.Unlock()
}

func (ra *RestAgent) handleSend(w http.ResponseWriter, r *http.Request) {
	var (
		sendRequest  RestSendRequest
		sendResponse RestSendResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&sendRequest); jsonErr != nil {
		sendResponse.Error = jsonErr.Error()
	} else if sendRequest.To == "" {
		sendResponse.Error = "to must not be empty"
	} else {
		msg := stanza.NewMessage(sendRequest.To, stanza.MessageChat)
		msg.Body = sendRequest.Body

		if sendErr := ra.srv.SendPacket(msg); sendErr != nil {
			sendResponse.Error = sendErr.Error()
		}
	}

	log.WithFields(log.Fields{
		"to":    sendRequest.To,
		"error": sendResponse.Error,
	}).Debug("RestAgent processed send request")

	if sendResponse.Error != "" {
		w.WriteHeader(http.StatusBadRequest)
	}
	_ = json.NewEncoder(w).Encode(sendResponse)
}

func (ra *RestAgent) handlePresences(w http.ResponseWriter, _ *http.Request) {
	var listing []RestPresence
	for _, p := range ra.srv.Store().All() {
		listing = append(listing, RestPresence{
			ServiceName: p.ServiceName(),
			Host:        p.Host(),
			Port:        p.Port(),
			Status:      string(p.Status()),
			Msg:         p.Msg(),
		})
	}

	_ = json.NewEncoder(w).Encode(listing)
}

func (ra *RestAgent) handleMessages(w http.ResponseWriter, r *http.Request) {
	serviceName := mux.Vars(r)["service"]

	ra.mailboxMu.Lock()
	msgs := ra.mailbox[serviceName]
	delete(ra.mailbox, serviceName)
	ra.mailboxMu.Unlock()

	if msgs == nil {
		msgs = []RestMessage{}
	}
	_ = json.NewEncoder(w).Encode(msgs)
}
