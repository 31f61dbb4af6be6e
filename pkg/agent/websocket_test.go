// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebsocketAgentRoundTrip(t *testing.T) {
	alice, bob := startPair(t)

	aliceAgent, err := NewWebsocketAgent("127.0.0.1:0", alice)
	if err != nil {
		t.Fatal(err)
	}
	defer aliceAgent.Close()

	bobAgent, err := NewWebsocketAgent("127.0.0.1:0", bob)
	if err != nil {
		t.Fatal(err)
	}
	defer bobAgent.Close()

	aliceClient, _, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("ws://%s/ws", aliceAgent.Address()), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer aliceClient.Close()

	bobClient, _, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("ws://%s/ws", bobAgent.Address()), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bobClient.Close()

	// give the agents a moment to register the clients
	time.Sleep(50 * time.Millisecond)

	if err := bobClient.WriteJSON(WsMessage{To: "alice@host-a", Body: "over ws"}); err != nil {
		t.Fatal(err)
	}

	_ = aliceClient.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame WsMessage
	if err := aliceClient.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}

	if frame.From != "bob@host-b" || frame.Body != "over ws" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}
