// Package bridge contains the relay engine connecting one IRC connection with
// one Urbit session: channel pairing rules, the bounded relay queue, the drain
// loop feeding the IRC side, and the orchestrator supervising the pieces as
// independent instances.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/urbit-irc-bridge/telemetry"
	"github.com/onnwee/urbit-irc-bridge/urbit"
)

// DefaultDrainInterval is the drain loop poll period.
const DefaultDrainInterval = 100 * time.Millisecond

// Sink is the outbound side the drain loop sends on.
type Sink interface {
	SendText(target, text string) error
	Reconnect(ctx context.Context) error
}

// Poster is the Urbit-facing outbound side for IRC-sourced messages.
type Poster interface {
	PostMessage(ctx context.Context, resourceShip, resourceName, text string) error
	Reconnect(ctx context.Context) error
}

// Bridge relays messages between one IRC connection and one Urbit session
// according to its pairing rules. IRC-bound messages flow through the bounded
// queue and the drain loop; Urbit-bound messages are posted directly from the
// IRC event handler.
type Bridge struct {
	instance string
	pairings Pairings
	queue    *Queue
	sink     Sink
	poster   Poster

	drainEvery time.Duration
}

// New assembles a bridge for one instance.
func New(instance string, pairings Pairings, queue *Queue, sink Sink, poster Poster) *Bridge {
	return &Bridge{
		instance:   instance,
		pairings:   pairings,
		queue:      queue,
		sink:       sink,
		poster:     poster,
		drainEvery: DefaultDrainInterval,
	}
}

// HandleIRCMessage relays a public IRC message toward every paired Urbit
// resource, rendered as "<author>: <text>". A decode failure on the post
// tears down and recreates the Urbit session; the failed message is lost
// (at-most-once delivery). An unpaired channel is dropped silently.
func (b *Bridge) HandleIRCMessage(ctx context.Context, channel, author, text string) {
	matches := b.pairings.MatchIRC(channel)
	if len(matches) == 0 {
		return
	}
	rendered := author + ": " + text
	for _, p := range matches {
		err := b.poster.PostMessage(ctx, p.ResourceShip, p.UrbitChannel, rendered)
		if err == nil {
			telemetry.MessagesToUrbit.Inc()
			continue
		}
		var de *urbit.DecodeError
		if errors.As(err, &de) {
			telemetry.DecodeFailures.Inc()
			slog.Warn("decode failure posting to urbit; reconnecting sink",
				slog.String("instance", b.instance), slog.String("channel", channel), slog.Any("err", err))
			b.reconnectPoster(ctx)
			continue
		}
		slog.Error("urbit post failed",
			slog.String("instance", b.instance), slog.String("channel", channel), slog.Any("err", err))
	}
}

// HandleUrbitMessage enqueues an inbound Urbit message for every paired IRC
// channel. A saturated queue drops the message with a warning; the queue is
// the back-pressure boundary, not a buffer of last resort.
func (b *Bridge) HandleUrbitMessage(m urbit.Message) {
	author := "~" + strings.TrimPrefix(m.Author, "~")
	for _, p := range b.pairings.MatchResource(m.HostShip, m.ResourceName) {
		msg := Message{Target: p.IRCChannel, Text: author + ": " + m.Text}
		if err := b.queue.Enqueue(msg); err != nil {
			telemetry.DroppedSaturated.Inc()
			slog.Warn("relay queue saturated; dropping message",
				slog.String("instance", b.instance), slog.String("target", p.IRCChannel))
		}
	}
}

// Run drains the queue on a fixed cycle, sending at most one message per tick
// so reconnect-driven state changes on the sink stay timely. It returns when
// the context is canceled.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.drainEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			telemetry.SetQueueDepth(b.queue.Len())
			m, ok := b.queue.TryDequeue()
			if !ok {
				continue
			}
			b.deliver(ctx, m)
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, m Message) {
	start := time.Now()
	err := b.sink.SendText(m.Target, m.Text)
	telemetry.ObserveSendDuration(time.Since(start))
	if err == nil {
		telemetry.MessagesToIRC.Inc()
		return
	}
	var de *urbit.DecodeError
	if errors.As(err, &de) {
		telemetry.DecodeFailures.Inc()
		slog.Warn("decode failure on drain send; reconnecting sink",
			slog.String("instance", b.instance), slog.String("target", m.Target), slog.Any("err", err))
		telemetry.SinkReconnects.Inc()
		if rerr := b.sink.Reconnect(ctx); rerr != nil {
			slog.Error("sink reconnect failed",
				slog.String("instance", b.instance), slog.Any("err", rerr))
		}
		// The in-flight message is not retried; documented at-most-once loss.
		return
	}
	slog.Error("drain send failed",
		slog.String("instance", b.instance), slog.String("target", m.Target), slog.Any("err", err))
}

func (b *Bridge) reconnectPoster(ctx context.Context) {
	telemetry.SinkReconnects.Inc()
	if err := b.poster.Reconnect(ctx); err != nil {
		slog.Error("urbit reconnect failed",
			slog.String("instance", b.instance), slog.Any("err", err))
	}
}
