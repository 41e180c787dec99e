package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/urbit-irc-bridge/backoff"
	"github.com/onnwee/urbit-irc-bridge/ircbot"
	"github.com/onnwee/urbit-irc-bridge/ircstate"
	"github.com/onnwee/urbit-irc-bridge/telemetry"
	"github.com/onnwee/urbit-irc-bridge/urbit"
)

const (
	// Reconnect delay bounds in seconds for the IRC side.
	minReconnectDelay = 3
	maxReconnectDelay = 5

	// DefaultQueueSize bounds the Urbit-to-IRC relay queue.
	DefaultQueueSize = 256

	// listenRetryDelay paces Urbit stream reconnects so a dead ship does not
	// spin the listener loop.
	listenRetryDelay = time.Second
)

// InstanceSpec is everything one bridge instance needs to run.
type InstanceSpec struct {
	Name string

	IRC ircbot.Config

	UrbitURL   string
	ClientShip string
	UrbitCode  string

	Pairings      Pairings
	QueueSize     int
	DrainInterval time.Duration
}

// Orchestrator runs bridge instances as independent units. A failure in one
// instance never propagates to its siblings; each reports its state to the
// shared registry and exits on its own terms.
type Orchestrator struct {
	registry *StatusRegistry
}

// NewOrchestrator returns an orchestrator reporting into the given registry.
func NewOrchestrator(registry *StatusRegistry) *Orchestrator {
	return &Orchestrator{registry: registry}
}

// RunInstance brings up one instance and blocks until it stops. It returns
// the instance-fatal error, or nil on a clean context-driven shutdown.
func (o *Orchestrator) RunInstance(ctx context.Context, spec InstanceSpec) error {
	log := slog.Default().With(slog.String("instance", spec.Name))
	o.registry.Set(spec.Name, StateStarting, nil)

	client := urbit.NewClient(spec.UrbitURL, spec.ClientShip, spec.UrbitCode)
	if err := client.Connect(ctx); err != nil {
		err = fmt.Errorf("urbit connect: %w", err)
		o.registry.Set(spec.Name, StateFailed, err)
		return err
	}

	size := spec.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	queue := NewQueue(size)
	tracker := ircstate.NewTracker(spec.IRC.Nick)
	recon := backoff.New(minReconnectDelay, maxReconnectDelay)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var br *Bridge
	bot, err := ircbot.New(spec.IRC, tracker, recon, func(channel, author, text string) {
		br.HandleIRCMessage(runCtx, channel, author, text)
	})
	if err != nil {
		o.registry.Set(spec.Name, StateFailed, err)
		closeClient(client)
		return err
	}
	br = New(spec.Name, spec.Pairings, queue, bot, client)
	if spec.DrainInterval > 0 {
		br.drainEvery = spec.DrainInterval
	}

	telemetry.InstancesRunning.Inc()
	defer telemetry.InstancesRunning.Dec()

	errCh := make(chan error, 2)
	go func() { errCh <- bot.Run(runCtx) }()
	go func() { errCh <- o.listen(runCtx, log, client, br) }()
	go br.Run(runCtx)

	o.registry.Set(spec.Name, StateRunning, nil)
	log.Info("bridge instance running",
		slog.String("ship", spec.ClientShip), slog.Int("pairings", len(spec.Pairings)))

	select {
	case <-ctx.Done():
		cancel()
		closeClient(client)
		o.registry.Set(spec.Name, StateStopped, nil)
		return nil
	case err := <-errCh:
		cancel()
		closeClient(client)
		if err == nil || errors.Is(err, context.Canceled) {
			o.registry.Set(spec.Name, StateStopped, nil)
			return nil
		}
		log.Error("bridge instance failed", slog.Any("err", err))
		o.registry.Set(spec.Name, StateFailed, err)
		return err
	}
}

// listen consumes the Urbit event stream, feeding decoded messages into the
// bridge. Decode failures and dropped streams tear down and recreate the
// session; the loop ends only when the context does or a reconnect fails.
func (o *Orchestrator) listen(ctx context.Context, log *slog.Logger, client *urbit.Client, br *Bridge) error {
	for {
		err := client.Listen(ctx, br.HandleUrbitMessage)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var de *urbit.DecodeError
		if errors.As(err, &de) {
			telemetry.DecodeFailures.Inc()
			log.Warn("urbit stream decode failure; reconnecting", slog.Any("err", err))
		} else {
			log.Warn("urbit stream closed; reconnecting", slog.Any("err", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(listenRetryDelay):
		}
		if rerr := client.Reconnect(ctx); rerr != nil {
			return fmt.Errorf("urbit reconnect: %w", rerr)
		}
	}
}

func closeClient(client *urbit.Client) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client.Close(closeCtx)
}
