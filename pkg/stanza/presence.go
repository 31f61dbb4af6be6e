// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import "encoding/xml"

// PresenceType is the type attribute of a <presence/> stanza. An absent type
// announces availability.
type PresenceType string

const (
	PresenceAvailable   PresenceType = ""
	PresenceUnavailable PresenceType = "unavailable"
	PresenceErrorType   PresenceType = "error"
)

// Presence is a <presence/> stanza. On a link-local stream these are rare,
// the mDNS TXT records carry the presence state, but peers may still send
// directed presence.
type Presence struct {
	XMLName xml.Name `xml:"presence"`
	header

	TypeAttr PresenceType `xml:"type,attr,omitempty"`

	Show     string `xml:"show,omitempty"`
	Status   string `xml:"status,omitempty"`
	Priority int    `xml:"priority,omitempty"`

	Error *Error `xml:"error,omitempty"`
}

func (pres *Presence) Type() PresenceType {
	return pres.TypeAttr
}

func (pres *Presence) SetType(ptype PresenceType) {
	pres.TypeAttr = ptype
}
