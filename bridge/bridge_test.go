package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/urbit-irc-bridge/telemetry"
	"github.com/onnwee/urbit-irc-bridge/urbit"
)

type fakeSink struct {
	mu         sync.Mutex
	sent       []Message
	sendErr    error
	reconnects int
}

func (s *fakeSink) SendText(target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		err := s.sendErr
		s.sendErr = nil
		return err
	}
	s.sent = append(s.sent, Message{Target: target, Text: text})
	return nil
}

func (s *fakeSink) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *fakeSink) sentMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

type post struct {
	ship, name, text string
}

type fakePoster struct {
	mu         sync.Mutex
	posts      []post
	postErr    error
	reconnects int
}

func (p *fakePoster) PostMessage(ctx context.Context, resourceShip, resourceName, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.postErr != nil {
		err := p.postErr
		p.postErr = nil
		return err
	}
	p.posts = append(p.posts, post{resourceShip, resourceName, text})
	return nil
}

func (p *fakePoster) Reconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnects++
	return nil
}

func testPairings() Pairings {
	return Pairings{
		{IRCChannel: "#general", ResourceShip: "~zod", UrbitChannel: "general"},
		{IRCChannel: "#dev", ResourceShip: "~zod", UrbitChannel: "dev"},
	}
}

func newTestBridge(sink *fakeSink, poster *fakePoster, queueSize int) *Bridge {
	telemetry.Init()
	return New("test", testPairings(), NewQueue(queueSize), sink, poster)
}

func TestHandleIRCMessagePostsToPairedResource(t *testing.T) {
	sink := &fakeSink{}
	poster := &fakePoster{}
	b := newTestBridge(sink, poster, 4)

	b.HandleIRCMessage(context.Background(), "#general", "alice", "hello there")

	if len(poster.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(poster.posts))
	}
	got := poster.posts[0]
	if got.ship != "~zod" || got.name != "general" {
		t.Errorf("posted to %s/%s, want ~zod/general", got.ship, got.name)
	}
	if got.text != "alice: hello there" {
		t.Errorf("text = %q, want %q", got.text, "alice: hello there")
	}
}

func TestHandleIRCMessageUnpairedIsDropped(t *testing.T) {
	sink := &fakeSink{}
	poster := &fakePoster{}
	b := newTestBridge(sink, poster, 4)

	b.HandleIRCMessage(context.Background(), "#random", "alice", "hello")

	if len(poster.posts) != 0 {
		t.Errorf("posts = %d, want 0 for unpaired channel", len(poster.posts))
	}
}

func TestHandleIRCMessageDecodeFailureReconnectsPoster(t *testing.T) {
	sink := &fakeSink{}
	poster := &fakePoster{postErr: &urbit.DecodeError{Op: "poke", Err: errors.New("bad frame")}}
	b := newTestBridge(sink, poster, 4)

	b.HandleIRCMessage(context.Background(), "#general", "alice", "lost line")

	if poster.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", poster.reconnects)
	}
	// The failed message is not retried.
	if len(poster.posts) != 0 {
		t.Errorf("posts = %d, want 0 after decode failure", len(poster.posts))
	}

	b.HandleIRCMessage(context.Background(), "#general", "alice", "next line")
	if len(poster.posts) != 1 || poster.posts[0].text != "alice: next line" {
		t.Errorf("posts after recovery = %+v, want the follow-up message only", poster.posts)
	}
}

func TestHandleIRCMessageNonDecodeErrorDoesNotReconnect(t *testing.T) {
	sink := &fakeSink{}
	poster := &fakePoster{postErr: errors.New("transient network error")}
	b := newTestBridge(sink, poster, 4)

	b.HandleIRCMessage(context.Background(), "#general", "alice", "hello")

	if poster.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0 for non-decode error", poster.reconnects)
	}
}

func TestHandleUrbitMessageEnqueuesForPairedChannel(t *testing.T) {
	sink := &fakeSink{}
	poster := &fakePoster{}
	b := newTestBridge(sink, poster, 4)

	// The stream delivers sigless names; pairings carry the sig.
	b.HandleUrbitMessage(urbit.Message{Author: "sampel", HostShip: "zod", ResourceName: "dev", Text: "ship it"})

	m, ok := b.queue.TryDequeue()
	if !ok {
		t.Fatal("expected one queued message")
	}
	if m.Target != "#dev" {
		t.Errorf("target = %q, want #dev", m.Target)
	}
	if m.Text != "~sampel: ship it" {
		t.Errorf("text = %q, want %q", m.Text, "~sampel: ship it")
	}
}

func TestHandleUrbitMessageUnmatchedResourceDropped(t *testing.T) {
	sink := &fakeSink{}
	poster := &fakePoster{}
	b := newTestBridge(sink, poster, 4)

	b.HandleUrbitMessage(urbit.Message{Author: "~sampel", HostShip: "~marzod", ResourceName: "other", Text: "hi"})

	if b.queue.Len() != 0 {
		t.Errorf("queue len = %d, want 0 for unmatched resource", b.queue.Len())
	}
}

func TestHandleUrbitMessageSaturatedQueueDrops(t *testing.T) {
	sink := &fakeSink{}
	poster := &fakePoster{}
	b := newTestBridge(sink, poster, 1)

	b.HandleUrbitMessage(urbit.Message{Author: "~sampel", HostShip: "~zod", ResourceName: "general", Text: "one"})
	b.HandleUrbitMessage(urbit.Message{Author: "~sampel", HostShip: "~zod", ResourceName: "general", Text: "two"})

	if b.queue.Len() != 1 {
		t.Fatalf("queue len = %d, want 1 after saturation", b.queue.Len())
	}
	m, _ := b.queue.TryDequeue()
	if m.Text != "~sampel: one" {
		t.Errorf("surviving message = %q, want the first one", m.Text)
	}
}

func TestDeliverDecodeFailureReconnectsSinkWithoutRetry(t *testing.T) {
	sink := &fakeSink{sendErr: &urbit.DecodeError{Op: "send", Err: errors.New("bad frame")}}
	poster := &fakePoster{}
	b := newTestBridge(sink, poster, 4)

	b.deliver(context.Background(), Message{Target: "#general", Text: "alice: dropped"})

	if sink.reconnects != 1 {
		t.Errorf("sink reconnects = %d, want 1", sink.reconnects)
	}
	if got := sink.sentMessages(); len(got) != 0 {
		t.Errorf("sent = %v, want none after decode failure", got)
	}

	b.deliver(context.Background(), Message{Target: "#general", Text: "alice: delivered"})
	got := sink.sentMessages()
	if len(got) != 1 || got[0].Text != "alice: delivered" {
		t.Errorf("sent after recovery = %v, want the follow-up only", got)
	}
}

func TestRunDrainsQueueToSink(t *testing.T) {
	sink := &fakeSink{}
	poster := &fakePoster{}
	b := newTestBridge(sink, poster, 4)
	b.drainEvery = 5 * time.Millisecond

	b.HandleUrbitMessage(urbit.Message{Author: "~sampel", HostShip: "~zod", ResourceName: "general", Text: "over the wire"})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(sink.sentMessages()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := sink.sentMessages()
	if len(got) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(got))
	}
	if got[0].Target != "#general" || got[0].Text != "~sampel: over the wire" {
		t.Errorf("sent = %+v, want #general %q", got[0], "~sampel: over the wire")
	}
}

func TestStatusRegistryTransitions(t *testing.T) {
	reg := NewStatusRegistry()
	reg.Set("alpha", StateStarting, nil)
	reg.Set("alpha", StateRunning, nil)
	reg.Set("beta", StateFailed, errors.New("nick taken"))

	if !reg.AnyRunning() {
		t.Error("expected AnyRunning after alpha transitioned to running")
	}
	snap := reg.Snapshot()
	if snap["alpha"].State != StateRunning {
		t.Errorf("alpha state = %q, want running", snap["alpha"].State)
	}
	if snap["beta"].State != StateFailed || snap["beta"].Error != "nick taken" {
		t.Errorf("beta = %+v, want failed with error", snap["beta"])
	}
	if snap["alpha"].StartedAt.IsZero() {
		t.Error("alpha StartedAt not recorded")
	}
}

func TestPairingsMatchAndChannels(t *testing.T) {
	ps := Pairings{
		{IRCChannel: "#a", ResourceShip: "~zod", UrbitChannel: "one"},
		{IRCChannel: "#a", ResourceShip: "~marzod", UrbitChannel: "two"},
		{IRCChannel: "#b", ResourceShip: "~zod", UrbitChannel: "three"},
	}

	if got := ps.MatchIRC("#a"); len(got) != 2 {
		t.Errorf("MatchIRC(#a) = %d pairings, want 2", len(got))
	}
	if got := ps.MatchResource("~zod", "three"); len(got) != 1 || got[0].IRCChannel != "#b" {
		t.Errorf("MatchResource(~zod, three) = %v, want #b", got)
	}
	if got := ps.MatchResource("~zod", "two"); len(got) != 0 {
		t.Errorf("MatchResource with wrong host ship matched: %v", got)
	}

	chans := ps.IRCChannels()
	if len(chans) != 2 || chans[0] != "#a" || chans[1] != "#b" {
		t.Errorf("IRCChannels = %v, want [#a #b]", chans)
	}
}
