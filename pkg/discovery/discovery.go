// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"errors"

	"github.com/llxmpp/llxmpp-go/pkg/presence"
)

const (
	// ServiceType is the DNS-SD service type for XEP-0174 presence.
	ServiceType = "_presence._tcp"

	// Domain is the mDNS domain.
	Domain = "local."
)

var (
	// ErrNotRegistered is returned by operations requiring a prior Register.
	ErrNotRegistered = errors.New("no service registered")

	// ErrBadPresenceText marks a peer whose TXT payload was mis-encoded.
	// Only that peer's presence is affected.
	ErrBadPresenceText = errors.New("peer announced a malformed TXT payload")
)

// Observer receives service life cycle events from the browser. An added
// service is known by name only; the adapter requests resolution and calls
// ServiceResolved once host, port and TXT data are complete. Incompletely
// resolved services are never surfaced as resolved.
type Observer interface {
	ServiceAdded(name string)
	ServiceRemoved(name string)
	ServiceResolved(name, host string, port int, records []presence.Record)
}

// Discoverer is the boundary between the session service and a concrete
// mDNS/DNS-SD implementation. One Discoverer handles at most one registered
// local service; the handle is encapsulated in the instance.
type Discoverer interface {
	// Register publishes the local presence and returns the instance name
	// that was finally accepted, which differs from the requested one after
	// a collision rename.
	Register(p *presence.Presence) (string, error)

	// Reannounce re-broadcasts the current registration.
	Reannounce() error

	// UpdateText atomically replaces the registered TXT records.
	UpdateText(records []presence.Record) error

	// Unregister withdraws the local service.
	Unregister() error

	// Browse starts watching the link and reports to the observer until the
	// Discoverer is closed.
	Browse(obs Observer) error

	// Close stops browsing and withdraws a still-registered service.
	Close() error
}
