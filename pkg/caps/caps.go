// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package caps

import (
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/llxmpp/llxmpp-go/pkg/disco"
	"github.com/llxmpp/llxmpp-go/pkg/service"
)

// HashMethod is the only hash this implementation announces.
const HashMethod = "sha-1"

// Version computes the XEP-0115 verification string: identities sorted and
// joined as category/type//name, features sorted, everything '<' separated,
// SHA-1 hashed and base64 encoded.
func Version(identities []disco.Identity, features []string) string {
	ids := append([]disco.Identity(nil), identities...)
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Category != ids[j].Category {
			return ids[i].Category < ids[j].Category
		}
		return ids[i].Type < ids[j].Type
	})

	feats := append([]string(nil), features...)
	sort.Strings(feats)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id.Category)
		b.WriteString("/")
		b.WriteString(id.Type)
		b.WriteString("//")
		b.WriteString(id.Name)
		b.WriteString("<")
	}
	for _, f := range feats {
		b.WriteString(f)
		b.WriteString("<")
	}

	sum := sha1.Sum([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Advertiser keeps the hash/node/ver TXT fields of the local presence in
// sync with the disco manager's feature set.
type Advertiser struct {
	srv  *service.Service
	mgr  *disco.Manager
	node string
}

// NewAdvertiser couples a service and its disco manager. node identifies the
// client software, e.g. a project URL. Every feature change recomputes the
// ver hash and reannounces the presence.
func NewAdvertiser(srv *service.Service, mgr *disco.Manager, node string) *Advertiser {
	a := &Advertiser{srv: srv, mgr: mgr, node: node}
	mgr.OnUpdate(a.advertise)
	a.advertise()

	return a
}

func (a *Advertiser) advertise() {
	info := a.mgr.LocalInfo()
	ver := Version(info.Identities, info.Features)

	local := a.srv.LocalPresence()
	local.SetCaps(HashMethod, a.node, ver)

	if err := a.srv.UpdatePresence(local); err != nil {
		log.WithError(err).Warn("Failed to reannounce entity capabilities")
	}
}
