// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/grandcat/zeroconf"

	"github.com/llxmpp/llxmpp-go/pkg/presence"
)

const (
	// probeTimeout bounds the pre-registration collision probe.
	probeTimeout = 500 * time.Millisecond

	// maxRenameAttempts bounds the collision rename loop.
	maxRenameAttempts = 10
)

// ZeroconfDiscoverer implements Discoverer on top of the zeroconf mDNS
// library. One instance owns at most one registered service; registration
// state is kept here, not in package scope, so multiple instances may serve
// different interfaces or a test harness.
type ZeroconfDiscoverer struct {
	resolver *zeroconf.Resolver

	mu       sync.RWMutex
	server   *zeroconf.Server
	instance string
	port     int
	txt      []string

	obs Observer

	// resolved tracks instance names already surfaced to the observer, so
	// added/resolved/removed events fire in order and only once per change.
	resolved sync.Map // string -> struct{}

	// purged names were renamed away from at registration time. Ghost cache
	// entries for them must not resurface as presences.
	purged sync.Map // string -> struct{}

	cancelBrowse context.CancelFunc
	closed       bool
}

// NewZeroconf creates a discoverer backed by the zeroconf library.
func NewZeroconf() (*ZeroconfDiscoverer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("creating mDNS resolver: %w", err)
	}

	return &ZeroconfDiscoverer{resolver: resolver}, nil
}

func (d *ZeroconfDiscoverer) log() *log.Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return log.WithFields(log.Fields{
		"discovery": "zeroconf",
		"instance":  d.instance,
	})
}

// Register publishes the local presence. On a name collision with another
// responder the instance label is altered, "name" becomes "name (2)" and so
// on, until a free label is found; the final name is returned. After
// maxRenameAttempts labels are all taken, Register fails. Stale cache
// entries recorded under the originally requested name are purged so they
// cannot come back as phantom presences.
func (d *ZeroconfDiscoverer) Register(p *presence.Presence) (string, error) {
	requested := p.ServiceName()
	name := requested

	for attempt := 2; d.nameInUse(name); attempt++ {
		if attempt > maxRenameAttempts {
			return "", fmt.Errorf("no free instance label for %q after %d attempts",
				requested, maxRenameAttempts)
		}
		name = fmt.Sprintf("%s (%d)", requested, attempt)
	}

	txt := presence.StringsFromRecords(p.ToRecords())

	server, err := zeroconf.Register(name, ServiceType, Domain, p.Port(), txt, nil)
	if err != nil {
		return "", fmt.Errorf("registering %q: %w", name, err)
	}

	d.mu.Lock()
	d.server = server
	d.instance = name
	d.port = p.Port()
	d.txt = txt
	d.mu.Unlock()

	if name != requested {
		log.WithFields(log.Fields{
			"requested": requested,
			"accepted":  name,
		}).Info("Service name collision, registered under altered label")

		d.evictStale(requested)
	}

	return name, nil
}

// nameInUse probes the link for another responder already owning the
// instance name.
func (d *ZeroconfDiscoverer) nameInUse(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := d.resolver.Lookup(ctx, name, ServiceType, Domain, entries); err != nil {
		d.log().WithError(err).Warn("Collision probe failed, assuming the name is free")
		return false
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return false
			}
			if entry != nil && entry.Instance == name && entry.TTL > 0 {
				return true
			}

		case <-ctx.Done():
			return false
		}
	}
}

// evictStale drops every trace of the given instance name from the local
// cache and, if it was ever surfaced, tells the observer it is gone. Without
// this, ghost entries of the pre-rename registration linger and produce
// phantom reads.
func (d *ZeroconfDiscoverer) evictStale(name string) {
	d.purged.Store(name, struct{}{})

	if _, surfaced := d.resolved.LoadAndDelete(name); surfaced {
		if obs := d.observer(); obs != nil {
			obs.ServiceRemoved(name)
		}
	}
}

// Reannounce re-broadcasts the current registration after a TXT mutation.
func (d *ZeroconfDiscoverer) Reannounce() error {
	d.mu.RLock()
	server, txt := d.server, d.txt
	d.mu.RUnlock()

	if server == nil {
		return ErrNotRegistered
	}

	// zeroconf announces on TXT updates; re-setting the current records is
	// its re-announce primitive.
	server.SetText(txt)
	return nil
}

// UpdateText atomically replaces the registered TXT records.
func (d *ZeroconfDiscoverer) UpdateText(records []presence.Record) error {
	txt := presence.StringsFromRecords(records)

	d.mu.Lock()
	server := d.server
	if server != nil {
		d.txt = txt
	}
	d.mu.Unlock()

	if server == nil {
		return ErrNotRegistered
	}

	server.SetText(txt)
	return nil
}

// Unregister withdraws the local service.
func (d *ZeroconfDiscoverer) Unregister() error {
	d.mu.Lock()
	server := d.server
	d.server = nil
	d.mu.Unlock()

	if server == nil {
		return ErrNotRegistered
	}

	server.Shutdown()
	return nil
}

// Browse starts watching the link for _presence._tcp services. Events are
// delivered to the observer until Close. A failure to start is fatal;
// afterwards the browser keeps running and logs transient trouble.
func (d *ZeroconfDiscoverer) Browse(obs Observer) error {
	d.mu.Lock()
	d.obs = obs
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	entries := make(chan *zeroconf.ServiceEntry, 32)
	if err := d.resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		cancel()
		return fmt.Errorf("browsing %s: %w", ServiceType, err)
	}

	d.mu.Lock()
	d.cancelBrowse = cancel
	d.mu.Unlock()

	go d.handleEntries(ctx, entries)

	return nil
}

func (d *ZeroconfDiscoverer) handleEntries(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return

		case entry, ok := <-entries:
			if !ok {
				return
			}
			if entry != nil {
				d.handleEntry(entry)
			}
		}
	}
}

func (d *ZeroconfDiscoverer) handleEntry(entry *zeroconf.ServiceEntry) {
	name := entry.Instance

	d.mu.RLock()
	self := d.instance
	selfPort := d.port
	d.mu.RUnlock()

	if name == self {
		return
	}
	if _, ghost := d.purged.Load(name); ghost && entry.Port == selfPort {
		// stale cache entry of our own pre-rename registration
		return
	}

	obs := d.observer()
	if obs == nil {
		return
	}

	if entry.TTL == 0 {
		if _, surfaced := d.resolved.LoadAndDelete(name); surfaced {
			obs.ServiceRemoved(name)
		}
		return
	}

	host := entryHost(entry)
	if host == "" || entry.Port == 0 {
		// name-only sighting: announce it and ask for full resolution
		if _, seen := d.resolved.Load(name); !seen {
			obs.ServiceAdded(name)
			go d.lookup(name)
		}
		return
	}

	records, err := presence.RecordsFromStrings(entry.Text)
	if err != nil {
		d.log().WithError(ErrBadPresenceText).WithField("peer", name).
			Warn("Dropping presence with malformed TXT records")
		return
	}

	if _, seen := d.resolved.LoadOrStore(name, struct{}{}); !seen {
		obs.ServiceAdded(name)
	}
	obs.ServiceResolved(name, host, entry.Port, records)
}

// lookup requests full resolution of an instance seen by name only. The
// answer comes back through the browse channel.
func (d *ZeroconfDiscoverer) lookup(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := d.resolver.Lookup(ctx, name, ServiceType, Domain, entries); err != nil {
		d.log().WithError(err).WithField("peer", name).Warn("Service resolution failed")
		return
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if entry != nil {
				d.handleEntry(entry)
			}

		case <-ctx.Done():
			return
		}
	}
}

// Close stops browsing and withdraws a still-registered service.
func (d *ZeroconfDiscoverer) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancel := d.cancelBrowse
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := d.Unregister(); err != nil && err != ErrNotRegistered {
		return err
	}
	return nil
}

func (d *ZeroconfDiscoverer) observer() Observer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.obs
}

// entryHost picks the advertised host for an entry: the SRV target if
// present, otherwise the first address record.
func entryHost(entry *zeroconf.ServiceEntry) string {
	if entry.HostName != "" {
		return strings.TrimSuffix(entry.HostName, ".")
	}
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return ""
}
