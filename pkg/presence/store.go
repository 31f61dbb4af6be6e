// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package presence

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// StoreListener is notified about presences appearing, changing and leaving
// the link. Callbacks run on the discovery adapter's goroutine and must not
// block for long.
type StoreListener interface {
	PresenceNew(p *Presence)
	PresenceUpdate(p *Presence)
	PresenceRemove(p *Presence)
}

// Store maps service names to the presences currently visible on the link.
// The discovery adapter is the single writer; readers may iterate snapshots
// concurrently.
type Store struct {
	mu        sync.RWMutex
	presences map[string]*Presence

	listenerMu sync.RWMutex
	listeners  []StoreListener
}

func NewStore() *Store {
	return &Store{
		presences: make(map[string]*Presence),
	}
}

// Get returns the presence for a service name.
func (store *Store) Get(serviceName string) (*Presence, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	p, ok := store.presences[serviceName]
	return p, ok
}

// All returns a snapshot of all known presences.
func (store *Store) All() []*Presence {
	store.mu.RLock()
	defer store.mu.RUnlock()

	all := make([]*Presence, 0, len(store.presences))
	for _, p := range store.presences {
		all = append(all, p)
	}
	return all
}

// Len returns the number of known presences.
func (store *Store) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()

	return len(store.presences)
}

// Put inserts a resolved presence or folds it into an existing entry,
// notifying listeners accordingly.
func (store *Store) Put(p *Presence) {
	name := p.ServiceName()

	store.mu.Lock()
	existing, known := store.presences[name]
	if known {
		existing.Update(p)
		existing.SetHost(p.Host())
		existing.SetPort(p.Port())
	} else {
		store.presences[name] = p
	}
	store.mu.Unlock()

	if known {
		log.WithField("presence", existing).Debug("Presence updated")
		store.eachListener(func(l StoreListener) { l.PresenceUpdate(existing) })
	} else {
		log.WithField("presence", p).Debug("Presence discovered")
		store.eachListener(func(l StoreListener) { l.PresenceNew(p) })
	}
}

// Remove drops a service name from the store.
func (store *Store) Remove(serviceName string) {
	store.mu.Lock()
	p, ok := store.presences[serviceName]
	delete(store.presences, serviceName)
	store.mu.Unlock()

	if ok {
		log.WithField("presence", p).Debug("Presence removed")
		store.eachListener(func(l StoreListener) { l.PresenceRemove(p) })
	}
}

func (store *Store) AddListener(l StoreListener) {
	store.listenerMu.Lock()
	store.listeners = append(store.listeners, l)
	store.listenerMu.Unlock()
}

func (store *Store) RemoveListener(l StoreListener) {
	store.listenerMu.Lock()
	defer store.listenerMu.Unlock()

	for i, known := range store.listeners {
		if known == l {
			store.listeners = append(store.listeners[:i], store.listeners[i+1:]...)
			return
		}
	}
}

func (store *Store) eachListener(f func(StoreListener)) {
	store.listenerMu.RLock()
	snapshot := make([]StoreListener, len(store.listeners))
	copy(snapshot, store.listeners)
	store.listenerMu.RUnlock()

	for _, l := range snapshot {
		f(l)
	}
}
