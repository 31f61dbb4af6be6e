// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package disco

import (
	"testing"
	"time"

	"github.com/llxmpp/llxmpp-go/pkg/discovery/discoverytest"
	"github.com/llxmpp/llxmpp-go/pkg/presence"
	"github.com/llxmpp/llxmpp-go/pkg/service"
)

func startPair(t *testing.T) (alice, bob *service.Service) {
	t.Helper()

	link := discoverytest.NewLink()

	alice = service.New(presence.NewWithAddress("alice@host-a", "127.0.0.1", 0), link.Discoverer())
	bob = service.New(presence.NewWithAddress("bob@host-b", "127.0.0.1", 0), link.Discoverer())

	if err := alice.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = alice.Close() })

	if err := bob.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = bob.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, a := alice.Store().Get("bob@host-b")
		_, b := bob.Store().Get("alice@host-a")
		if a && b {
			return alice, bob
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("services never discovered each other")
	return nil, nil
}

func TestDiscoverInfo(t *testing.T) {
	alice, bob := startPair(t)

	aliceDisco := NewManager(alice)
	aliceDisco.SetIdentity(Identity{Category: "client", Type: "pc", Name: "llxmpp"})
	aliceDisco.AddFeature("http://jabber.org/protocol/chatstates")

	bobDisco := NewManager(bob)

	info, err := bobDisco.DiscoverInfo("alice@host-a")
	if err != nil {
		t.Fatal(err)
	}

	if len(info.Identities) != 1 || info.Identities[0].Name != "llxmpp" {
		t.Fatalf("unexpected identities: %v", info.Identities)
	}

	var foundDisco, foundChatstates bool
	for _, f := range info.Features {
		switch f {
		case NSInfo:
			foundDisco = true
		case "http://jabber.org/protocol/chatstates":
			foundChatstates = true
		}
	}
	if !foundDisco || !foundChatstates {
		t.Fatalf("features incomplete: %v", info.Features)
	}
}

func TestUnqueriedPeerGetsErrorReply(t *testing.T) {
	alice, bob := startPair(t)

	// only bob runs a disco manager; alice's engine auto-replies with
	// feature-not-implemented
	bobDisco := NewManager(bob)
	_ = alice

	if _, err := bobDisco.DiscoverInfo("alice@host-a"); err == nil {
		t.Fatal("expected an error from a peer without disco support")
	}
}

func TestLocalInfoSorted(t *testing.T) {
	link := discoverytest.NewLink()
	srv := service.New(presence.NewWithAddress("solo@host", "127.0.0.1", 0), link.Discoverer())

	m := NewManager(srv)
	m.AddFeature("zzz")
	m.AddFeature("aaa")

	info := m.LocalInfo()
	for i := 1; i < len(info.Features); i++ {
		if info.Features[i-1] > info.Features[i] {
			t.Fatalf("features not sorted: %v", info.Features)
		}
	}
}
