// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package caps

import (
	"testing"

	"github.com/llxmpp/llxmpp-go/pkg/disco"
)

// TestVersionVector checks the computation against the worked example from
// XEP-0115 §5.2.
func TestVersionVector(t *testing.T) {
	identities := []disco.Identity{
		{Category: "client", Type: "pc", Name: "Exodus 0.9.1"},
	}
	features := []string{
		"http://jabber.org/protocol/muc",
		"http://jabber.org/protocol/disco#info",
		"http://jabber.org/protocol/disco#items",
		"http://jabber.org/protocol/caps",
	}

	if got, want := Version(identities, features), "QgayPKawpkPSDYmwT/WM94uAlu0="; got != want {
		t.Fatalf("ver mismatch: got %q, want %q", got, want)
	}
}

func TestVersionOrderIndependence(t *testing.T) {
	a := Version(nil, []string{"b", "a", "c"})
	b := Version(nil, []string{"c", "b", "a"})

	if a != b {
		t.Fatal("feature order must not influence the hash")
	}
}
