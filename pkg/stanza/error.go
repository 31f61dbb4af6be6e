// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// NSStanzas is the namespace of the defined error conditions, RFC 6120 §8.3.
const NSStanzas = "urn:ietf:params:xml:ns:xmpp-stanzas"

// Error condition element names used by the engine.
const (
	ConditionFeatureNotImplemented = "feature-not-implemented"
	ConditionServiceUnavailable    = "service-unavailable"
	ConditionRemoteServerTimeout   = "remote-server-timeout"
)

// CodeFeatureNotImplemented is the legacy numeric code paired with
// feature-not-implemented.
const CodeFeatureNotImplemented = 501

// Error is the <error/> child of a stanza.
type Error struct {
	XMLName xml.Name `xml:"error"`

	Code     int    `xml:"code,attr,omitempty"`
	TypeAttr string `xml:"type,attr,omitempty"`

	Inner string `xml:",innerxml"`
}

// NewError creates a stanza error carrying the given defined condition.
func NewError(code int, condition string) *Error {
	return &Error{
		Code:  code,
		Inner: fmt.Sprintf("<%s xmlns=%q/>", condition, NSStanzas),
	}
}

// Condition extracts the defined condition element name, or an empty string
// if none is present.
func (e *Error) Condition() string {
	dec := xml.NewDecoder(strings.NewReader(e.Inner))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local
		}
	}
}

func (e *Error) Error() string {
	if cond := e.Condition(); cond != "" {
		return fmt.Sprintf("stanza error %d (%s)", e.Code, cond)
	}
	return fmt.Sprintf("stanza error %d", e.Code)
}

// StreamError is a stream-level <error/> received as a direct child of
// <stream:stream/>. It terminates the whole stream, not just one stanza.
type StreamError struct {
	XMLName xml.Name `xml:"http://etherx.jabber.org/streams error"`
	Inner   string   `xml:",innerxml"`
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %s", strings.TrimSpace(e.Inner))
}
