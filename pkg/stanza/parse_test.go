// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"strings"
	"testing"
)

func TestParseMessage(t *testing.T) {
	raw := `<message id="m-1" from="bob@host-b" to="alice@host-a" type="chat"><body>hi</body></message>`

	pkt, err := ParseString(raw)
	if err != nil {
		t.Fatal(err)
	}

	msg, ok := pkt.(*Message)
	if !ok {
		t.Fatalf("expected *Message, got %T", pkt)
	}

	if msg.ID() != "m-1" || msg.From() != "bob@host-b" || msg.To() != "alice@host-a" {
		t.Fatalf("wrong addressing: %+v", msg)
	}
	if msg.Type() != MessageChat {
		t.Fatalf("expected chat, got %v", msg.Type())
	}
	if msg.Body != "hi" {
		t.Fatalf("expected body hi, got %q", msg.Body)
	}
}

func TestParseMessageDefaultType(t *testing.T) {
	pkt, err := ParseString(`<message from="a@x"><body>y</body></message>`)
	if err != nil {
		t.Fatal(err)
	}

	if mtype := pkt.(*Message).Type(); mtype != MessageNormal {
		t.Fatalf("expected normal, got %v", mtype)
	}
}

func TestParseIQUnknownPayload(t *testing.T) {
	raw := `<iq id="q-1" from="bob@host-b" to="alice@host-a" type="get">` +
		`<query xmlns="urn:example:unknown"><x/></query></iq>`

	pkt, err := ParseString(raw)
	if err != nil {
		t.Fatal(err)
	}

	iq, ok := pkt.(*IQ)
	if !ok {
		t.Fatalf("expected *IQ, got %T", pkt)
	}

	if iq.ID() != "q-1" || iq.Type() != IQGet {
		t.Fatalf("lost id or type: %+v", iq)
	}
	if iq.Payload == nil {
		t.Fatal("payload was dropped")
	}
	if ns := iq.Payload.Namespace(); ns != "urn:example:unknown" {
		t.Fatalf("unexpected payload namespace %q", ns)
	}
}

func TestParseUnknownElement(t *testing.T) {
	if _, err := ParseString(`<bogus/>`); err == nil {
		t.Fatal("expected an error for an unknown top-level element")
	}
}

func TestRenderRoundTrip(t *testing.T) {
	msg := NewMessage("alice@host-a", MessageChat)
	msg.SetFrom("bob@host-b")
	msg.Body = "hello there"

	raw, err := Render(msg)
	if err != nil {
		t.Fatal(err)
	}

	back, err := ParseString(raw)
	if err != nil {
		t.Fatal(err)
	}

	msg2 := back.(*Message)
	if msg2.ID() != msg.ID() || msg2.Body != msg.Body || msg2.Type() != MessageChat {
		t.Fatalf("round trip mangled the message: %q", raw)
	}
}

func TestRenderStampsFrom(t *testing.T) {
	msg := NewMessage("alice@host-a", MessageChat)
	msg.SetFrom("bob@host-b")

	raw, err := Render(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(raw, `from="bob@host-b"`) {
		t.Fatalf("missing from attribute: %q", raw)
	}
}

func TestErrorReply(t *testing.T) {
	request := NewIQ("alice@host-a", IQGet)
	request.SetFrom("bob@host-b")

	reply := NewErrorReply(request, CodeFeatureNotImplemented, ConditionFeatureNotImplemented)

	if reply.ID() != request.ID() {
		t.Fatal("reply must echo the request ID")
	}
	if reply.To() != "bob@host-b" || reply.From() != "alice@host-a" {
		t.Fatalf("reply addressing not swapped: %+v", reply)
	}
	if reply.Type() != IQError {
		t.Fatalf("expected error type, got %v", reply.Type())
	}
	if cond := reply.Error.Condition(); cond != ConditionFeatureNotImplemented {
		t.Fatalf("unexpected condition %q", cond)
	}

	raw, err := Render(reply)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(raw, `code="501"`) || !strings.Contains(raw, "feature-not-implemented") {
		t.Fatalf("rendered reply lacks the condition: %q", raw)
	}
}
