// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"github.com/google/uuid"
)

// Packet is one top-level stanza. All stanzas carry the common id, to and
// from attributes; everything else is type specific.
type Packet interface {
	ID() string
	To() string
	From() string

	SetID(id string)
	SetTo(to string)
	SetFrom(from string)
}

// header holds the attributes shared by all stanza types. It is embedded in
// Message, IQ and Presence and provides the Packet accessors.
type header struct {
	IDAttr   string `xml:"id,attr,omitempty"`
	ToAttr   string `xml:"to,attr,omitempty"`
	FromAttr string `xml:"from,attr,omitempty"`
}

func (h *header) ID() string   { return h.IDAttr }
func (h *header) To() string   { return h.ToAttr }
func (h *header) From() string { return h.FromAttr }

func (h *header) SetID(id string)     { h.IDAttr = id }
func (h *header) SetTo(to string)     { h.ToAttr = to }
func (h *header) SetFrom(from string) { h.FromAttr = from }

// NewID returns a fresh packet ID for request/response correlation.
func NewID() string {
	return uuid.NewString()
}
