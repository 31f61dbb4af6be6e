// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Parse decodes one top-level child of <stream:stream/> into a stanza. The
// decoder must be positioned at the given start element; the whole element is
// consumed. An unknown element name yields an error, a known stanza with an
// unknown payload is still returned with the payload kept as a Generic.
func Parse(dec *xml.Decoder, start xml.StartElement) (Packet, error) {
	switch start.Name.Local {
	case "message":
		msg := new(Message)
		if err := dec.DecodeElement(msg, &start); err != nil {
			return nil, fmt.Errorf("parsing <message/>: %w", err)
		}
		return msg, nil

	case "iq":
		iq := new(IQ)
		if err := dec.DecodeElement(iq, &start); err != nil {
			return nil, fmt.Errorf("parsing <iq/>: %w", err)
		}
		return iq, nil

	case "presence":
		pres := new(Presence)
		if err := dec.DecodeElement(pres, &start); err != nil {
			return nil, fmt.Errorf("parsing <presence/>: %w", err)
		}
		return pres, nil

	default:
		return nil, fmt.Errorf("unknown stanza element <%s/>", start.Name.Local)
	}
}

// Render serializes a stanza to its XML text form.
func Render(p Packet) (string, error) {
	raw, err := xml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("rendering stanza: %w", err)
	}

	return string(raw), nil
}

// ParseString decodes a single stanza from its XML text form. Mostly useful
// for tests and agents.
func ParseString(raw string) (Packet, error) {
	dec := xml.NewDecoder(strings.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return Parse(dec, start)
		}
	}
}
