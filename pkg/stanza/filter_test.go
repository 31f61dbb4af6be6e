// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import "testing"

func TestFilterCombinators(t *testing.T) {
	msg := NewMessage("alice@host-a", MessageChat)
	msg.SetFrom("bob@host-b")

	iq := NewIQ("alice@host-a", IQGet)

	if !And(IsMessage, MessageTypeIs(MessageChat))(msg) {
		t.Fatal("chat message should pass")
	}
	if And(IsMessage, MessageTypeIs(MessageChat))(iq) {
		t.Fatal("IQ should not pass a message filter")
	}
	if !Or(IsIQ, IsPresence)(iq) {
		t.Fatal("IQ should pass Or(IsIQ, IsPresence)")
	}
	if Or(IsIQ, IsPresence)(msg) {
		t.Fatal("message should not pass Or(IsIQ, IsPresence)")
	}
	if !FromIs("bob@host-b")(msg) {
		t.Fatal("FromIs missed")
	}
}

func TestReplyFilter(t *testing.T) {
	request := NewIQ("alice@host-a", IQGet)
	f := ReplyFilter(request)

	result := NewResultReply(request)
	if !f(result) {
		t.Fatal("result reply should match")
	}

	errReply := NewErrorReply(request, CodeFeatureNotImplemented, ConditionFeatureNotImplemented)
	if !f(errReply) {
		t.Fatal("error reply should match")
	}

	other := NewIQ("alice@host-a", IQResult)
	if f(other) {
		t.Fatal("unrelated IQ must not match")
	}

	echo := &IQ{TypeAttr: IQGet}
	echo.SetID(request.ID())
	if f(echo) {
		t.Fatal("a get with the same ID must not match")
	}
}
