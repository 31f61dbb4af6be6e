// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

// Filter decides if a listener or collector wants to see a stanza. A nil
// Filter accepts everything.
type Filter func(Packet) bool

// And accepts a stanza iff every given filter accepts it.
func And(filters ...Filter) Filter {
	return func(p Packet) bool {
		for _, f := range filters {
			if f != nil && !f(p) {
				return false
			}
		}
		return true
	}
}

// Or accepts a stanza iff at least one given filter accepts it.
func Or(filters ...Filter) Filter {
	return func(p Packet) bool {
		for _, f := range filters {
			if f != nil && f(p) {
				return true
			}
		}
		return false
	}
}

// IDIs matches stanzas carrying the given packet ID.
func IDIs(id string) Filter {
	return func(p Packet) bool {
		return p.ID() == id
	}
}

// FromIs matches stanzas sent by the given service name.
func FromIs(serviceName string) Filter {
	return func(p Packet) bool {
		return p.From() == serviceName
	}
}

// IsMessage matches <message/> stanzas.
func IsMessage(p Packet) bool {
	_, ok := p.(*Message)
	return ok
}

// IsIQ matches <iq/> stanzas.
func IsIQ(p Packet) bool {
	_, ok := p.(*IQ)
	return ok
}

// IsPresence matches <presence/> stanzas.
func IsPresence(p Packet) bool {
	_, ok := p.(*Presence)
	return ok
}

// MessageTypeIs matches messages of one of the given types.
func MessageTypeIs(types ...MessageType) Filter {
	return func(p Packet) bool {
		msg, ok := p.(*Message)
		if !ok {
			return false
		}
		for _, t := range types {
			if msg.Type() == t {
				return true
			}
		}
		return false
	}
}

// IQTypeIs matches IQs of one of the given types.
func IQTypeIs(types ...IQType) Filter {
	return func(p Packet) bool {
		iq, ok := p.(*IQ)
		if !ok {
			return false
		}
		for _, t := range types {
			if iq.Type() == t {
				return true
			}
		}
		return false
	}
}

// ReplyFilter matches the answer to a request IQ: same packet ID, type
// result or error. The reply may arrive on any stream.
func ReplyFilter(request *IQ) Filter {
	return And(IsIQ, IDIs(request.ID()), IQTypeIs(IQResult, IQError))
}
