// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/llxmpp/llxmpp-go/pkg/discovery/discoverytest"
	"github.com/llxmpp/llxmpp-go/pkg/presence"
	"github.com/llxmpp/llxmpp-go/pkg/stanza"
)

// waitFor polls a condition until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

// startPair brings up two connected services on a shared test link.
func startPair(t *testing.T) (alice, bob *Service) {
	t.Helper()

	reg := discoverytest.NewLink()

	alice = New(presence.NewWithAddress("alice@host-a", "127.0.0.1", 0), reg.Discoverer())
	bob = New(presence.NewWithAddress("bob@host-b", "127.0.0.1", 0), reg.Discoverer())

	if err := alice.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = alice.Close() })

	if err := bob.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = bob.Close() })

	waitFor(t, "mutual discovery", func() bool {
		_, aliceKnowsBob := alice.Store().Get("bob@host-b")
		_, bobKnowsAlice := bob.Store().Get("alice@host-a")
		return aliceKnowsBob && bobKnowsAlice
	})

	return alice, bob
}

type chatRecorder struct {
	mu       sync.Mutex
	messages []*stanza.Message
}

func (cr *chatRecorder) ProcessMessage(_ *Chat, msg *stanza.Message) {
	cr.mu.Lock()
	cr.messages = append(cr.messages, msg)
	cr.mu.Unlock()
}

func (cr *chatRecorder) count() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.messages)
}

func (cr *chatRecorder) bodies() []string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	var out []string
	for _, msg := range cr.messages {
		out = append(out, msg.Body)
	}
	return out
}

func TestDiscovery(t *testing.T) {
	alice, bob := startPair(t)

	p, ok := bob.Store().Get("alice@host-a")
	if !ok {
		t.Fatal("bob never discovered alice")
	}
	if p.Host() != "127.0.0.1" || p.Port() != alice.LocalPresence().Port() {
		t.Fatalf("resolved wrong address: %v", p)
	}
	if p.Status() != presence.Avail {
		t.Fatalf("expected avail, got %v", p.Status())
	}
}

func TestBasicMessage(t *testing.T) {
	alice, bob := startPair(t)

	recorder := new(chatRecorder)
	aliceChat, err := alice.GetChat("bob@host-b")
	if err != nil {
		t.Fatal(err)
	}
	aliceChat.AddMessageListener(recorder)

	bobChat, err := bob.GetChat("alice@host-a")
	if err != nil {
		t.Fatal(err)
	}
	if err := bobChat.SendMessage("hi"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "message delivery", func() bool { return recorder.count() == 1 })

	if bodies := recorder.bodies(); bodies[0] != "hi" {
		t.Fatalf("expected body hi, got %q", bodies[0])
	}
}

func TestMessageBacklog(t *testing.T) {
	alice, bob := startPair(t)

	bobChat, err := bob.GetChat("alice@host-a")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := bobChat.SendMessage(fmt.Sprintf("queued %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	// wait until all three sit in alice's backlog
	waitFor(t, "backlog fill", func() bool {
		chat, err := alice.GetChat("bob@host-b")
		if err != nil {
			return false
		}
		chat.mu.Lock()
		defer chat.mu.Unlock()
		return len(chat.backlog) == 3
	})

	first := new(chatRecorder)
	aliceChat, _ := alice.GetChat("bob@host-b")
	aliceChat.AddMessageListener(first)

	if got := first.bodies(); len(got) != 3 || got[0] != "queued 0" || got[2] != "queued 2" {
		t.Fatalf("backlog replay broken: %v", got)
	}

	// a second listener must not see the replay
	second := new(chatRecorder)
	aliceChat.AddMessageListener(second)
	if second.count() != 0 {
		t.Fatal("second listener received replayed messages")
	}
}

func TestSendToUnknownPeer(t *testing.T) {
	alice, _ := startPair(t)

	msg := stanza.NewMessage("nobody@nowhere", stanza.MessageChat)
	if err := alice.SendPacket(msg); !errors.Is(err, ErrPeerUnavailable) {
		t.Fatalf("expected ErrPeerUnavailable, got %v", err)
	}

	if _, err := alice.GetChat("nobody@nowhere"); !errors.Is(err, ErrPeerUnavailable) {
		t.Fatalf("expected ErrPeerUnavailable from GetChat, got %v", err)
	}
}

func TestIQAutoReply(t *testing.T) {
	_, bob := startPair(t)

	request := stanza.NewIQ("alice@host-a", stanza.IQGet)
	request.Payload = &stanza.Generic{
		XMLName: xml.Name{Space: "urn:example:unsupported", Local: "query"},
	}

	reply, err := bob.GetIQResponse(request)
	if err != nil {
		t.Fatal(err)
	}

	if reply.Type() != stanza.IQError {
		t.Fatalf("expected an error reply, got %v", reply.Type())
	}
	if reply.Error == nil || reply.Error.Condition() != stanza.ConditionFeatureNotImplemented {
		t.Fatalf("expected feature-not-implemented, got %v", reply.Error)
	}
	if reply.ID() != request.ID() {
		t.Fatal("reply does not correlate with the request")
	}
}

type echoResponder struct {
	srv *Service
}

func (er *echoResponder) ProcessPacket(p stanza.Packet) {
	iq := p.(*stanza.IQ)
	reply := stanza.NewResultReply(iq)
	_ = er.srv.SendPacket(reply)
}

func TestIQResponse(t *testing.T) {
	alice, bob := startPair(t)

	alice.AddPacketListener(&echoResponder{srv: alice},
		stanza.And(stanza.IsIQ, stanza.IQTypeIs(stanza.IQGet)))

	request := stanza.NewIQ("alice@host-a", stanza.IQGet)
	reply, err := bob.GetIQResponse(request)
	if err != nil {
		t.Fatal(err)
	}

	if reply.Type() != stanza.IQResult {
		t.Fatalf("expected result, got %v", reply.Type())
	}
}

func TestCollectorSeesAllStreams(t *testing.T) {
	alice, bob := startPair(t)

	collector := bob.CreateCollector(stanza.And(stanza.IsMessage, stanza.IDIs("x-1")))
	defer collector.Cancel()

	// alice dials bob on her own; the match arrives on a stream bob never
	// asked for
	msg := stanza.NewMessage("bob@host-b", stanza.MessageChat)
	msg.SetID("x-1")
	msg.Body = "over a fresh inbound stream"
	if err := alice.SendPacket(msg); err != nil {
		t.Fatal(err)
	}

	pkt, err := collector.Next(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.(*stanza.Message).Body != "over a fresh inbound stream" {
		t.Fatal("collector caught the wrong stanza")
	}
}

func TestCollectorTimeout(t *testing.T) {
	alice, _ := startPair(t)

	collector := alice.CreateCollector(stanza.IDIs("never"))
	defer collector.Cancel()

	if _, err := collector.Next(0); !errors.Is(err, ErrTimeout) {
		t.Fatalf("immediate poll should time out, got %v", err)
	}

	start := time.Now()
	if _, err := collector.Next(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout took far too long")
	}
}

func TestRevivalAfterStreamClose(t *testing.T) {
	alice, bob := startPair(t)

	recorder := new(chatRecorder)
	aliceChat, err := alice.GetChat("bob@host-b")
	if err != nil {
		t.Fatal(err)
	}
	aliceChat.AddMessageListener(recorder)

	bobChat, _ := bob.GetChat("alice@host-a")
	if err := bobChat.SendMessage("first"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first delivery", func() bool { return recorder.count() == 1 })

	// kill every live stream, simulating the idle reaper
	for _, s := range bob.Connections() {
		s.Close()
	}
	waitFor(t, "stream teardown", func() bool { return len(bob.Connections()) == 0 })

	if err := bobChat.SendMessage("second"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "revived delivery", func() bool { return recorder.count() == 2 })
}

func TestConcurrentDial(t *testing.T) {
	alice, bob := startPair(t)

	var wg sync.WaitGroup
	wg.Add(2)
	errChnl := make(chan error, 2)

	go func() {
		defer wg.Done()
		_, err := alice.GetConnection("bob@host-b")
		errChnl <- err
	}()
	go func() {
		defer wg.Done()
		_, err := bob.GetConnection("alice@host-a")
		errChnl <- err
	}()
	wg.Wait()

	for i := 0; i < 2; i++ {
		if err := <-errChnl; err != nil {
			t.Fatal(err)
		}
	}

	aliceRec := new(chatRecorder)
	aliceChat, _ := alice.GetChat("bob@host-b")
	aliceChat.AddMessageListener(aliceRec)

	bobRec := new(chatRecorder)
	bobChat, _ := bob.GetChat("alice@host-a")
	bobChat.AddMessageListener(bobRec)

	if err := bobChat.SendMessage("to alice"); err != nil {
		t.Fatal(err)
	}
	if err := aliceChat.SendMessage("to bob"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "both deliveries", func() bool {
		return aliceRec.count() >= 1 && bobRec.count() >= 1
	})

	// no duplication across the dual streams
	time.Sleep(200 * time.Millisecond)
	if aliceRec.count() != 1 || bobRec.count() != 1 {
		t.Fatalf("duplicated delivery: alice=%d bob=%d", aliceRec.count(), bobRec.count())
	}
}

type stateRecorder struct {
	mu            sync.Mutex
	renames       [][2]string
	unknownOrigin []*stanza.Message
	closedCount   int
}

func (sr *stateRecorder) ServiceClosed() {
	sr.mu.Lock()
	sr.closedCount++
	sr.mu.Unlock()
}

func (sr *stateRecorder) ServiceClosedOnError(error) {}

func (sr *stateRecorder) UnknownOriginMessage(msg *stanza.Message) {
	sr.mu.Lock()
	sr.unknownOrigin = append(sr.unknownOrigin, msg)
	sr.mu.Unlock()
}

func (sr *stateRecorder) ServiceNameChanged(newName, oldName string) {
	sr.mu.Lock()
	sr.renames = append(sr.renames, [2]string{newName, oldName})
	sr.mu.Unlock()
}

func TestNameCollisionRename(t *testing.T) {
	reg := discoverytest.NewLink()

	first := New(presence.NewWithAddress("alice@host", "127.0.0.1", 0), reg.Discoverer())
	if err := first.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = first.Close() })

	second := New(presence.NewWithAddress("alice@host", "127.0.0.1", 0), reg.Discoverer())
	sr := new(stateRecorder)
	second.AddStateListener(sr)

	if err := second.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = second.Close() })

	if got := second.LocalServiceName(); got != "alice@host (2)" {
		t.Fatalf("expected renamed label, got %q", got)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	if len(sr.renames) != 1 || sr.renames[0] != [2]string{"alice@host (2)", "alice@host"} {
		t.Fatalf("rename notification missing or wrong: %v", sr.renames)
	}
}

func TestUnknownOriginMessage(t *testing.T) {
	alice, bob := startPair(t)

	sr := new(stateRecorder)
	alice.AddStateListener(sr)

	// send a forged message directly over the stream, bypassing the from
	// stamping in SendPacket
	conn, err := bob.GetConnection("alice@host-a")
	if err != nil {
		t.Fatal(err)
	}

	forged := stanza.NewMessage("alice@host-a", stanza.MessageChat)
	forged.SetFrom("ghost@nowhere")
	forged.Body = "boo"
	if err := conn.SendPacket(forged); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "unknown origin notification", func() bool {
		sr.mu.Lock()
		defer sr.mu.Unlock()
		return len(sr.unknownOrigin) == 1
	})
}

func TestBindRangeExhausted(t *testing.T) {
	const min, max = 23400, 23402

	var blockers []net.Listener
	for port := min; port <= max; port++ {
		ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
		if err != nil {
			t.Skipf("port %d not available for the exhaustion fixture", port)
		}
		blockers = append(blockers, ln)
	}
	defer func() {
		for _, ln := range blockers {
			_ = ln.Close()
		}
	}()

	reg := discoverytest.NewLink()
	srv := New(presence.NewWithAddress("alice@host", "127.0.0.1", 0), reg.Discoverer(),
		WithPortRange(min, max))

	if err := srv.Start(); !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed, got %v", err)
	}
}

func TestCloseCancelsCollectors(t *testing.T) {
	alice, _ := startPair(t)

	collector := alice.CreateCollector(stanza.IDIs("never"))

	done := make(chan error, 1)
	go func() {
		_, err := collector.Next(time.Minute)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := alice.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout after close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("collector stayed blocked after Close")
	}
}

func TestSendPacketStampsFrom(t *testing.T) {
	alice, bob := startPair(t)

	collector := alice.CreateCollector(stanza.IsMessage)
	defer collector.Cancel()

	msg := stanza.NewMessage("alice@host-a", stanza.MessageChat)
	msg.SetFrom("spoofed@elsewhere")
	if err := bob.SendPacket(msg); err != nil {
		t.Fatal(err)
	}

	pkt, err := collector.Next(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.From() != "bob@host-b" {
		t.Fatalf("sender stamp missing, from=%q", pkt.From())
	}
}
