// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import "encoding/xml"

// MessageType is the type attribute of a <message/> stanza.
type MessageType string

const (
	MessageChat      MessageType = "chat"
	MessageNormal    MessageType = "normal"
	MessageError     MessageType = "error"
	MessageGroupchat MessageType = "groupchat"
	MessageHeadline  MessageType = "headline"
)

// Message is a <message/> stanza.
type Message struct {
	XMLName xml.Name `xml:"message"`
	header

	TypeAttr MessageType `xml:"type,attr,omitempty"`

	Subject string `xml:"subject,omitempty"`
	Body    string `xml:"body,omitempty"`
	Thread  string `xml:"thread,omitempty"`

	Error *Error `xml:"error,omitempty"`
}

// NewMessage creates a message of the given type addressed to the given
// service name, with a fresh packet ID.
func NewMessage(to string, mtype MessageType) *Message {
	msg := &Message{TypeAttr: mtype}
	msg.SetID(NewID())
	msg.SetTo(to)

	return msg
}

// Type returns the message type, where a missing type attribute defaults to
// "normal" as demanded by RFC 6121.
func (msg *Message) Type() MessageType {
	if msg.TypeAttr == "" {
		return MessageNormal
	}
	return msg.TypeAttr
}

func (msg *Message) SetType(mtype MessageType) {
	msg.TypeAttr = mtype
}
