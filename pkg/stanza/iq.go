// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import "encoding/xml"

// IQType is the type attribute of an <iq/> stanza.
type IQType string

const (
	IQGet    IQType = "get"
	IQSet    IQType = "set"
	IQResult IQType = "result"
	IQError  IQType = "error"
)

// IQ is an <iq/> stanza. Its payload, if any, is kept as a Generic element
// so that unknown extensions survive a parse/serialize round trip and can be
// inspected by consumers like service discovery.
type IQ struct {
	XMLName xml.Name `xml:"iq"`
	header

	TypeAttr IQType `xml:"type,attr,omitempty"`

	Error   *Error   `xml:"error,omitempty"`
	Payload *Generic `xml:",any,omitempty"`
}

// NewIQ creates an IQ of the given type with a fresh packet ID.
func NewIQ(to string, iqType IQType) *IQ {
	iq := &IQ{TypeAttr: iqType}
	iq.SetID(NewID())
	iq.SetTo(to)

	return iq
}

// Type returns the IQ type, defaulting to "get" for a missing attribute.
func (iq *IQ) Type() IQType {
	if iq.TypeAttr == "" {
		return IQGet
	}
	return iq.TypeAttr
}

func (iq *IQ) SetType(iqType IQType) {
	iq.TypeAttr = iqType
}

// IsRequest reports whether this IQ demands an answer from its receiver.
func (iq *IQ) IsRequest() bool {
	t := iq.Type()
	return t == IQGet || t == IQSet
}

// Generic is an opaque extension element. The element's name, namespace and
// attributes are preserved together with its raw inner XML.
type Generic struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// UnmarshalXML keeps name, attributes and raw inner XML. Namespace
// declarations are dropped from the attribute list, the XMLName already
// carries the namespace and would otherwise be emitted twice on marshal.
func (gen *Generic) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var aux struct {
		Inner string `xml:",innerxml"`
	}
	if err := dec.DecodeElement(&aux, &start); err != nil {
		return err
	}

	gen.XMLName = start.Name
	gen.Inner = aux.Inner
	for _, attr := range start.Attr {
		if attr.Name.Local == "xmlns" || attr.Name.Space == "xmlns" {
			continue
		}
		gen.Attrs = append(gen.Attrs, attr)
	}

	return nil
}

// Namespace returns the extension element's namespace.
func (gen *Generic) Namespace() string {
	return gen.XMLName.Space
}

// NewErrorReply builds the error answer for a request IQ, swapping the
// addressing and attaching the given condition. The engine uses this with
// ConditionFeatureNotImplemented for IQ requests nobody handled.
func NewErrorReply(request *IQ, code int, condition string) *IQ {
	reply := &IQ{TypeAttr: IQError}
	reply.SetID(request.ID())
	reply.SetTo(request.From())
	reply.SetFrom(request.To())
	reply.Error = NewError(code, condition)

	return reply
}

// NewResultReply builds an empty result answer for a request IQ.
func NewResultReply(request *IQ) *IQ {
	reply := &IQ{TypeAttr: IQResult}
	reply.SetID(request.ID())
	reply.SetTo(request.From())
	reply.SetFrom(request.To())

	return reply
}
