// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discoverytest provides an in-memory Discoverer for tests and
// demos: every Discoverer attached to the same Link sees the others'
// registrations, including collision renames and removals, without any
// multicast traffic.
package discoverytest

import (
	"fmt"
	"sync"

	"github.com/llxmpp/llxmpp-go/pkg/discovery"
	"github.com/llxmpp/llxmpp-go/pkg/presence"
)

// Link simulates the shared broadcast domain.
type Link struct {
	mu          sync.Mutex
	entries     map[string]entry
	discoverers []*Discoverer
}

type entry struct {
	host    string
	port    int
	records []presence.Record
}

// NewLink creates an empty link.
func NewLink() *Link {
	return &Link{entries: make(map[string]entry)}
}

// Discoverer attaches a fresh peer to the link.
func (link *Link) Discoverer() *Discoverer {
	d := &Discoverer{link: link}

	link.mu.Lock()
	link.discoverers = append(link.discoverers, d)
	link.mu.Unlock()

	return d
}

// others returns every peer with an active observer, except self.
func (link *Link) others(self *Discoverer) []*Discoverer {
	link.mu.Lock()
	defer link.mu.Unlock()

	var out []*Discoverer
	for _, d := range link.discoverers {
		if d != self && d.observer() != nil {
			out = append(out, d)
		}
	}
	return out
}

// Discoverer implements discovery.Discoverer against a Link.
type Discoverer struct {
	link *Link

	mu       sync.Mutex
	instance string
	obs      discovery.Observer
}

var _ discovery.Discoverer = (*Discoverer)(nil)

func (d *Discoverer) observer() discovery.Observer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.obs
}

// Register publishes the presence on the link, renaming on collision just
// like a real responder would.
func (d *Discoverer) Register(p *presence.Presence) (string, error) {
	requested := p.ServiceName()
	name := requested

	d.link.mu.Lock()
	for i := 2; ; i++ {
		if _, taken := d.link.entries[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s (%d)", requested, i)
	}
	e := entry{host: "127.0.0.1", port: p.Port(), records: p.ToRecords()}
	d.link.entries[name] = e
	d.link.mu.Unlock()

	d.mu.Lock()
	d.instance = name
	d.mu.Unlock()

	for _, peer := range d.link.others(d) {
		obs := peer.observer()
		obs.ServiceAdded(name)
		obs.ServiceResolved(name, e.host, e.port, e.records)
	}

	return name, nil
}

// Reannounce redelivers the current registration to every browsing peer.
func (d *Discoverer) Reannounce() error {
	d.mu.Lock()
	name := d.instance
	d.mu.Unlock()

	if name == "" {
		return discovery.ErrNotRegistered
	}

	d.link.mu.Lock()
	e, ok := d.link.entries[name]
	d.link.mu.Unlock()
	if !ok {
		return discovery.ErrNotRegistered
	}

	for _, peer := range d.link.others(d) {
		peer.observer().ServiceResolved(name, e.host, e.port, e.records)
	}
	return nil
}

// UpdateText replaces the published TXT records.
func (d *Discoverer) UpdateText(records []presence.Record) error {
	d.mu.Lock()
	name := d.instance
	d.mu.Unlock()

	if name == "" {
		return discovery.ErrNotRegistered
	}

	d.link.mu.Lock()
	e := d.link.entries[name]
	e.records = records
	d.link.entries[name] = e
	d.link.mu.Unlock()

	return nil
}

// Unregister withdraws the presence and tells every peer.
func (d *Discoverer) Unregister() error {
	d.mu.Lock()
	name := d.instance
	d.instance = ""
	d.mu.Unlock()

	if name == "" {
		return discovery.ErrNotRegistered
	}

	d.link.mu.Lock()
	delete(d.link.entries, name)
	d.link.mu.Unlock()

	for _, peer := range d.link.others(d) {
		peer.observer().ServiceRemoved(name)
	}
	return nil
}

// Browse replays the link's current registrations to the observer and keeps
// it subscribed for future events.
func (d *Discoverer) Browse(obs discovery.Observer) error {
	d.mu.Lock()
	d.obs = obs
	self := d.instance
	d.mu.Unlock()

	d.link.mu.Lock()
	snapshot := make(map[string]entry, len(d.link.entries))
	for name, e := range d.link.entries {
		if name != self {
			snapshot[name] = e
		}
	}
	d.link.mu.Unlock()

	for name, e := range snapshot {
		obs.ServiceAdded(name)
		obs.ServiceResolved(name, e.host, e.port, e.records)
	}
	return nil
}

// Close detaches the observer from the link.
func (d *Discoverer) Close() error {
	d.mu.Lock()
	d.obs = nil
	d.mu.Unlock()
	return nil
}
