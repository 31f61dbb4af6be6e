// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package disco

import (
	"encoding/xml"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/llxmpp/llxmpp-go/pkg/service"
	"github.com/llxmpp/llxmpp-go/pkg/stanza"
)

// NSInfo is the disco#info namespace.
const NSInfo = "http://jabber.org/protocol/disco#info"

// Identity describes what kind of entity the local client is.
type Identity struct {
	Category string
	Type     string
	Name     string
}

// Info is the result of a disco#info exchange.
type Info struct {
	Node       string
	Identities []Identity
	Features   []string
}

// infoQuery is the wire form of <query xmlns="…disco#info"/>.
type infoQuery struct {
	XMLName    xml.Name       `xml:"http://jabber.org/protocol/disco#info query"`
	Node       string         `xml:"node,attr,omitempty"`
	Identities []infoIdentity `xml:"identity"`
	Features   []infoFeature  `xml:"feature"`
}

type infoIdentity struct {
	Category string `xml:"category,attr"`
	Type     string `xml:"type,attr"`
	Name     string `xml:"name,attr,omitempty"`
}

type infoFeature struct {
	Var string `xml:"var,attr"`
}

// Manager answers disco#info requests about the local client and queries
// remote peers. Changing the feature set fires the registered update hooks,
// entity caps recomputation hangs off those.
type Manager struct {
	srv *service.Service

	mu         sync.RWMutex
	identities []Identity
	features   map[string]struct{}
	hooks      []func()
}

// NewManager attaches a discovery manager to a service. The local client
// always announces the disco#info feature itself.
func NewManager(srv *service.Service) *Manager {
	m := &Manager{
		srv:        srv,
		identities: []Identity{{Category: "client", Type: "pc"}},
		features:   map[string]struct{}{NSInfo: {}},
	}

	srv.AddPacketListener(m, stanza.And(
		stanza.IsIQ,
		stanza.IQTypeIs(stanza.IQGet),
		m.isInfoQuery))

	return m
}

func (m *Manager) isInfoQuery(p stanza.Packet) bool {
	iq, ok := p.(*stanza.IQ)
	return ok && iq.Payload != nil && iq.Payload.Namespace() == NSInfo
}

// ProcessPacket implements service.PacketListener, answering disco#info
// requests with the local identities and features.
func (m *Manager) ProcessPacket(p stanza.Packet) {
	request, ok := p.(*stanza.IQ)
	if !ok {
		return
	}

	reply := stanza.NewResultReply(request)
	reply.Payload = m.localInfoPayload()

	if err := m.srv.SendPacket(reply); err != nil {
		log.WithFields(log.Fields{
			"peer":  request.From(),
			"error": err,
		}).Warn("Failed to answer disco#info request")
	}
}

func (m *Manager) localInfoPayload() *stanza.Generic {
	info := m.LocalInfo()

	query := infoQuery{}
	for _, id := range info.Identities {
		query.Identities = append(query.Identities,
			infoIdentity{Category: id.Category, Type: id.Type, Name: id.Name})
	}
	for _, f := range info.Features {
		query.Features = append(query.Features, infoFeature{Var: f})
	}

	raw, err := xml.Marshal(query)
	if err != nil {
		// infoQuery marshalling cannot fail on this data
		log.WithError(err).Error("Failed to marshal disco#info payload")
		return nil
	}

	return genericFromRaw(raw)
}

// genericFromRaw re-parses a marshalled element into a Generic payload.
func genericFromRaw(raw []byte) *stanza.Generic {
	gen := new(stanza.Generic)
	if err := xml.Unmarshal(raw, gen); err != nil {
		return nil
	}
	return gen
}

// LocalInfo returns a snapshot of the announced identities and features,
// features in sorted order.
func (m *Manager) LocalInfo() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := Info{Identities: append([]Identity(nil), m.identities...)}
	for f := range m.features {
		info.Features = append(info.Features, f)
	}
	sort.Strings(info.Features)

	return info
}

// SetIdentity replaces the announced identity.
func (m *Manager) SetIdentity(id Identity) {
	m.mu.Lock()
	m.identities = []Identity{id}
	m.mu.Unlock()

	m.runHooks()
}

// AddFeature announces another supported feature.
func (m *Manager) AddFeature(feature string) {
	m.mu.Lock()
	m.features[feature] = struct{}{}
	m.mu.Unlock()

	m.runHooks()
}

// RemoveFeature withdraws a feature again.
func (m *Manager) RemoveFeature(feature string) {
	m.mu.Lock()
	delete(m.features, feature)
	m.mu.Unlock()

	m.runHooks()
}

// OnUpdate registers a hook running after every feature or identity change.
func (m *Manager) OnUpdate(hook func()) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook)
	m.mu.Unlock()
}

func (m *Manager) runHooks() {
	m.mu.RLock()
	hooks := make([]func(), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()

	for _, hook := range hooks {
		hook()
	}
}

// DiscoverInfo queries a remote peer for its identities and features.
func (m *Manager) DiscoverInfo(serviceName string) (*Info, error) {
	request := stanza.NewIQ(serviceName, stanza.IQGet)
	request.Payload = genericFromRaw([]byte(fmt.Sprintf(`<query xmlns=%q/>`, NSInfo)))

	reply, err := m.srv.GetIQResponse(request)
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, reply.Error
	}
	if reply.Payload == nil || reply.Payload.Namespace() != NSInfo {
		return nil, fmt.Errorf("disco#info reply carries no query payload")
	}

	raw, err := xml.Marshal(reply.Payload)
	if err != nil {
		return nil, err
	}

	var query infoQuery
	if err := xml.Unmarshal(raw, &query); err != nil {
		return nil, fmt.Errorf("parsing disco#info reply: %w", err)
	}

	info := &Info{Node: query.Node}
	for _, id := range query.Identities {
		info.Identities = append(info.Identities,
			Identity{Category: id.Category, Type: id.Type, Name: id.Name})
	}
	for _, f := range query.Features {
		info.Features = append(info.Features, f.Var)
	}

	return info, nil
}
