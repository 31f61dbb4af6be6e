// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	log "github.com/sirupsen/logrus"

	"github.com/llxmpp/llxmpp-go/pkg/stanza"
	"github.com/llxmpp/llxmpp-go/pkg/stream"
)

// dispatcher serializes stanza delivery for the whole service. One goroutine
// per service, not per stream, so listeners observe a consistent order.
func (srv *Service) dispatcher() {
	defer srv.wg.Done()

	for {
		select {
		case <-srv.stopSyn:
			return

		case item := <-srv.dispatchChnl:
			srv.dispatch(item.src, item.pkt)
		}
	}
}

// dispatch routes one inbound stanza: collectors first, then filtered
// listeners, then message delivery into chats. An IQ request nobody claimed
// is answered with feature-not-implemented.
func (srv *Service) dispatch(src *stream.Stream, pkt stanza.Packet) {
	claimed := false

	srv.collectorMu.RLock()
	collectors := make([]*Collector, 0, len(srv.collectors))
	for c := range srv.collectors {
		collectors = append(collectors, c)
	}
	srv.collectorMu.RUnlock()

	for _, c := range collectors {
		if c.offer(pkt) {
			claimed = true
		}
	}

	srv.listenerMu.RLock()
	listeners := make([]listenerEntry, len(srv.packetListeners))
	copy(listeners, srv.packetListeners)
	srv.listenerMu.RUnlock()

	for _, entry := range listeners {
		if entry.filter == nil || entry.filter(pkt) {
			entry.listener.ProcessPacket(pkt)
			claimed = true
		}
	}

	switch p := pkt.(type) {
	case *stanza.Message:
		switch p.Type() {
		case stanza.MessageChat, stanza.MessageNormal, stanza.MessageError:
			srv.deliverMessage(p)
		}

	case *stanza.IQ:
		if p.IsRequest() && !claimed {
			srv.replyNotImplemented(src, p)
		}
	}
}

// deliverMessage routes a message into the sender's chat. A sender without a
// known presence is reported to the state listeners and the message is
// dropped.
func (srv *Service) deliverMessage(msg *stanza.Message) {
	chat, err := srv.GetChat(msg.From())
	if err != nil {
		srv.log().WithField("from", msg.From()).Debug("Message from unknown origin")

		srv.eachStateListener(func(l StateListener) {
			l.UnknownOriginMessage(msg)
		})
		return
	}

	chat.deliver(msg)
}

// replyNotImplemented answers an unhandled IQ request with a
// feature-not-implemented error on the stream it came from.
func (srv *Service) replyNotImplemented(src *stream.Stream, request *stanza.IQ) {
	reply := stanza.NewErrorReply(request,
		stanza.CodeFeatureNotImplemented, stanza.ConditionFeatureNotImplemented)
	reply.SetFrom(srv.LocalServiceName())

	if err := src.SendPacket(reply); err != nil {
		log.WithFields(log.Fields{
			"service": srv.LocalServiceName(),
			"peer":    request.From(),
			"error":   err,
		}).Warn("Failed to send feature-not-implemented reply")
	}
}
