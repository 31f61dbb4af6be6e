// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"sync"

	"github.com/llxmpp/llxmpp-go/pkg/stanza"
)

// MessageListener is notified about messages arriving in a chat.
type MessageListener interface {
	ProcessMessage(c *Chat, msg *stanza.Message)
}

// ChatListener is notified when the service creates a new chat session.
type ChatListener interface {
	NewChat(c *Chat)
}

// Chat is the message channel to one remote peer. Messages arriving while no
// listener is attached are buffered; the first listener drains the backlog
// in FIFO order, later listeners only see new messages. A chat lives as long
// as its service.
type Chat struct {
	srv         *Service
	serviceName string

	mu        sync.Mutex
	listeners []MessageListener
	backlog   []*stanza.Message
}

func newChat(srv *Service, serviceName string) *Chat {
	return &Chat{
		srv:         srv,
		serviceName: serviceName,
	}
}

// ServiceName returns the remote peer of this chat session.
func (c *Chat) ServiceName() string {
	return c.serviceName
}

// deliver hands an inbound message to the listeners, or buffers it while
// there are none.
func (c *Chat) deliver(msg *stanza.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.listeners) == 0 {
		c.backlog = append(c.backlog, msg)
		return
	}

	for _, l := range c.listeners {
		l.ProcessMessage(c, msg)
	}
}

// AddMessageListener attaches a listener. A pending backlog is replayed to
// this listener and cleared.
func (c *Chat) AddMessageListener(l MessageListener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = append(c.listeners, l)

	for _, msg := range c.backlog {
		l.ProcessMessage(c, msg)
	}
	c.backlog = nil
}

// RemoveMessageListener detaches a listener again.
func (c *Chat) RemoveMessageListener(l MessageListener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, known := range c.listeners {
		if known == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// SendMessage sends a chat message to the remote peer.
func (c *Chat) SendMessage(body string) error {
	msg := stanza.NewMessage(c.serviceName, stanza.MessageChat)
	msg.Body = body

	return c.srv.SendPacket(msg)
}

// SendPacket sends a prepared message, forcing addressing and chat type.
func (c *Chat) SendPacket(msg *stanza.Message) error {
	msg.SetTo(c.serviceName)
	msg.SetType(stanza.MessageChat)

	return c.srv.SendPacket(msg)
}
