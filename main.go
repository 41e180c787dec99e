// Command urbit-irc-bridge relays chat between IRC channels and Urbit graph
// chats. It:
//   - Loads the JSON bridge configuration and initializes structured logging.
//   - Starts one independent bridge instance per configured bot, each owning
//     an IRC connection and an Urbit airlock session.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/urbit-irc-bridge/bridge"
	"github.com/onnwee/urbit-irc-bridge/config"
	"github.com/onnwee/urbit-irc-bridge/ircbot"
	"github.com/onnwee/urbit-irc-bridge/server"
	"github.com/onnwee/urbit-irc-bridge/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("urbit-irc-bridge", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := bridge.NewStatusRegistry()
	orch := bridge.NewOrchestrator(registry)

	var wg sync.WaitGroup
	for _, inst := range cfg.Instances {
		spec := instanceSpec(inst, cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := orch.RunInstance(ctx, spec); err != nil {
				slog.Error("bridge instance exited", slog.String("instance", spec.Name), slog.Any("err", err))
			}
		}()
	}

	go func() {
		slog.Info("http server starting", slog.String("addr", cfg.HTTPAddr))
		if err := server.Start(ctx, registry, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
}

// instanceSpec maps one configured bot to the orchestrator's runtime spec.
func instanceSpec(inst config.Instance, cfg *config.Config) bridge.InstanceSpec {
	pairings := make(bridge.Pairings, 0, len(inst.Channels))
	for _, ch := range inst.Channels {
		pairings = append(pairings, bridge.Pairing{
			IRCChannel:   ch.IRCChannel,
			ResourceShip: ch.ResourceShip,
			UrbitChannel: ch.UrbitChannel,
		})
	}
	servers := make([]ircbot.ServerSpec, 0, len(inst.IRCServers))
	for _, srv := range inst.IRCServers {
		servers = append(servers, ircbot.ServerSpec{
			Host:     srv.Hostname,
			Port:     srv.Port,
			Password: srv.Password,
		})
	}
	return bridge.InstanceSpec{
		Name: inst.Name,
		IRC: ircbot.Config{
			Servers:  servers,
			Nick:     inst.IRCNickname,
			Channels: pairings.IRCChannels(),
			UseTLS:   inst.IRCUseTLS,
			Version:  "urbit-irc-bridge",
		},
		UrbitURL:      inst.UrbitURL,
		ClientShip:    inst.ClientShip,
		UrbitCode:     inst.UrbitCode,
		Pairings:      pairings,
		QueueSize:     cfg.QueueSize,
		DrainInterval: cfg.DrainInterval,
	}
}
