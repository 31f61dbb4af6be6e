// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package presence

import (
	"fmt"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Mode is the announced availability, the "status" TXT field. A missing or
// unknown status equals avail.
type Mode string

const (
	Avail Mode = "avail"
	Away  Mode = "away"
	DND   Mode = "dnd"
)

// ParseMode maps a TXT status value to a Mode. An empty value is avail; any
// other value outside the three defined ones is logged and treated as avail.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case Avail, Away, DND:
		return Mode(s)
	case "":
		return Avail
	default:
		log.WithField("status", s).Warn("Unknown presence status in TXT entry")
		return Avail
	}
}

// Presence is the advertised identity of one peer: the DNS-SD instance name,
// the host and port to reach it, and the TXT fields. The local presence is
// owned by the session service and mutated through its setters; remote
// presences are owned by the Store.
type Presence struct {
	mu sync.RWMutex

	serviceName string
	host        string
	port        int

	first, last string
	email, jid  string
	nick, msg   string

	// entity caps advertisement
	hash, node, ver string

	status Mode

	// TXT keys this implementation does not know
	extra map[string]string
}

// New creates a presence with just a service name, as seen after a
// serviceAdded event before resolution.
func New(serviceName string) *Presence {
	return &Presence{
		serviceName: serviceName,
		status:      Avail,
		extra:       make(map[string]string),
	}
}

// NewWithAddress creates a presence with resolved host data.
func NewWithAddress(serviceName, host string, port int) *Presence {
	p := New(serviceName)
	p.host = host
	p.port = port

	return p
}

// FromRecords builds a resolved presence from decoded TXT records.
func FromRecords(serviceName, host string, port int, records []Record) *Presence {
	p := NewWithAddress(serviceName, host, port)

	for _, r := range records {
		switch r.Key {
		case "txtvers", "port.p2pj":
			// emitted for compatibility, nothing to keep
		case "1st":
			p.first = r.Value
		case "last":
			p.last = r.Value
		case "email":
			p.email = r.Value
		case "jid":
			p.jid = r.Value
		case "nick":
			p.nick = r.Value
		case "msg":
			p.msg = r.Value
		case "hash":
			p.hash = r.Value
		case "node":
			p.node = r.Value
		case "ver":
			p.ver = r.Value
		case "status":
			p.status = ParseMode(r.Value)
		default:
			p.extra[r.Key] = r.Value
		}
	}

	return p
}

// ToRecords maps the presence to its TXT records. txtvers=1 always comes
// first; port.p2pj echoes the SRV port for legacy consumers. Empty optional
// fields are skipped.
func (p *Presence) ToRecords() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()

	records := []Record{{Key: "txtvers", Value: "1"}}

	optional := []Record{
		{Key: "1st", Value: p.first},
		{Key: "last", Value: p.last},
		{Key: "email", Value: p.email},
		{Key: "jid", Value: p.jid},
		{Key: "nick", Value: p.nick},
		{Key: "msg", Value: p.msg},
		{Key: "hash", Value: p.hash},
		{Key: "node", Value: p.node},
		{Key: "ver", Value: p.ver},
	}
	for _, r := range optional {
		if r.Value != "" {
			records = append(records, r)
		}
	}

	records = append(records,
		Record{Key: "status", Value: string(p.status)},
		Record{Key: "port.p2pj", Value: strconv.Itoa(p.port)})

	for k, v := range p.extra {
		records = append(records, Record{Key: k, Value: v})
	}

	return records
}

// Update copies the mutable identity fields from another presence. Host,
// port and service name stay untouched; those belong to the discovery layer.
func (p *Presence) Update(other *Presence) {
	other.mu.RLock()
	first, last := other.first, other.last
	email, jid := other.email, other.jid
	nick, msg := other.nick, other.msg
	hash, node, ver := other.hash, other.node, other.ver
	status := other.status
	other.mu.RUnlock()

	p.mu.Lock()
	p.first, p.last = first, last
	p.email, p.jid = email, jid
	p.nick, p.msg = nick, msg
	p.hash, p.node, p.ver = hash, node, ver
	p.status = status
	p.mu.Unlock()
}

// Equal holds iff service name and host are equal. The port is deliberately
// excluded: collision renaming may move a peer to another port.
func (p *Presence) Equal(other *Presence) bool {
	if other == nil {
		return false
	}

	p.mu.RLock()
	name, host := p.serviceName, p.host
	p.mu.RUnlock()

	other.mu.RLock()
	defer other.mu.RUnlock()

	return name == other.serviceName && host == other.host
}

func (p *Presence) ServiceName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.serviceName
}

func (p *Presence) SetServiceName(name string) {
	p.mu.Lock()
	p.serviceName = name
	p.mu.Unlock()
}

func (p *Presence) Host() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.host
}

func (p *Presence) SetHost(host string) {
	p.mu.Lock()
	p.host = host
	p.mu.Unlock()
}

func (p *Presence) Port() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.port
}

func (p *Presence) SetPort(port int) {
	p.mu.Lock()
	p.port = port
	p.mu.Unlock()
}

func (p *Presence) Status() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Presence) SetStatus(status Mode) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func (p *Presence) Msg() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.msg
}

func (p *Presence) SetMsg(msg string) {
	p.mu.Lock()
	p.msg = msg
	p.mu.Unlock()
}

func (p *Presence) Nick() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nick
}

func (p *Presence) SetNick(nick string) {
	p.mu.Lock()
	p.nick = nick
	p.mu.Unlock()
}

func (p *Presence) FirstName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.first
}

func (p *Presence) SetFirstName(first string) {
	p.mu.Lock()
	p.first = first
	p.mu.Unlock()
}

func (p *Presence) LastName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *Presence) SetLastName(last string) {
	p.mu.Lock()
	p.last = last
	p.mu.Unlock()
}

func (p *Presence) EMail() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.email
}

func (p *Presence) SetEMail(email string) {
	p.mu.Lock()
	p.email = email
	p.mu.Unlock()
}

func (p *Presence) JID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.jid
}

func (p *Presence) SetJID(jid string) {
	p.mu.Lock()
	p.jid = jid
	p.mu.Unlock()
}

// Caps returns the entity capabilities triple (hash, node, ver).
func (p *Presence) Caps() (hash, node, ver string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hash, p.node, p.ver
}

// SetCaps sets the entity capabilities triple announced in the TXT records.
func (p *Presence) SetCaps(hash, node, ver string) {
	p.mu.Lock()
	p.hash, p.node, p.ver = hash, node, ver
	p.mu.Unlock()
}

// Value returns the value of an unknown TXT key.
func (p *Presence) Value(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.extra[key]
}

// PutValue stores an unknown TXT key.
func (p *Presence) PutValue(key, value string) {
	p.mu.Lock()
	p.extra[key] = value
	p.mu.Unlock()
}

func (p *Presence) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return fmt.Sprintf("Presence(%s,%s:%d,%s)", p.serviceName, p.host, p.port, p.status)
}
