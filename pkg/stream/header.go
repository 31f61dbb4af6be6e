// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

const (
	// NSClient is the mandatory default namespace of a link-local stream.
	NSClient = "jabber:client"

	// NSStream is the stream prefix namespace.
	NSStream = "http://etherx.jabber.org/streams"
)

// header is the parsed opening <stream:stream/> element.
type header struct {
	to   string
	from string
}

// writeHeader emits the opening stream element.
func writeHeader(w io.Writer, to, from string) error {
	_, err := fmt.Fprintf(w,
		`<stream:stream to="%s" from="%s" xmlns="%s" xmlns:stream="%s" version="1.0">`,
		xmlEscape(to), xmlEscape(from), NSClient, NSStream)

	return err
}

// parseHeader validates an opening stream element and extracts its
// addressing. The element must be stream:stream in the stream namespace with
// jabber:client as default namespace.
func parseHeader(start xml.StartElement) (header, error) {
	var h header

	if start.Name.Space != NSStream || start.Name.Local != "stream" {
		return h, fmt.Errorf("unexpected stream root <%s> in namespace %q",
			start.Name.Local, start.Name.Space)
	}

	var defaultNS string
	for _, attr := range start.Attr {
		switch {
		case attr.Name.Space == "" && attr.Name.Local == "xmlns":
			defaultNS = attr.Value
		case attr.Name.Local == "to":
			h.to = attr.Value
		case attr.Name.Local == "from":
			h.from = attr.Value
		}
	}

	if defaultNS != NSClient {
		return h, fmt.Errorf("stream namespace is %q, expected %q", defaultNS, NSClient)
	}

	return h, nil
}

// xmlEscape escapes a service name for use in an attribute value.
func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
