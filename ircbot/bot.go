// Package ircbot wraps one IRC connection behind the bridge's relay surface:
// it keeps membership state in sync from server events, answers CTCP queries,
// forwards public messages to the bridge, and drives server rotation through
// the backoff reconnector when the link drops.
package ircbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"

	"github.com/onnwee/urbit-irc-bridge/backoff"
	"github.com/onnwee/urbit-irc-bridge/ircstate"
	"github.com/onnwee/urbit-irc-bridge/telemetry"
)

var (
	// ErrNicknameInUse means the server rejected registration with ERR_NICKNAMEINUSE.
	ErrNicknameInUse = errors.New("ircbot: nickname already in use")
	// ErrNoServers means the configuration named no server endpoints.
	ErrNoServers = errors.New("ircbot: no servers configured")
	// ErrNoChannels means the configuration named no channels to join.
	ErrNoChannels = errors.New("ircbot: no channels configured")
)

// ServerSpec is one endpoint in the server rotation.
type ServerSpec struct {
	Host     string
	Port     int
	Password string
}

// Config holds the static connection parameters for one bot.
type Config struct {
	Servers  []ServerSpec
	Nick     string
	Channels []string
	UseTLS   bool
	Version  string // CTCP VERSION reply
}

// MessageHandler receives public channel messages addressed to a channel the
// bot is in. It is invoked from the connection's event loop.
type MessageHandler func(channel, author, text string)

// Bot is one IRC connection plus its membership tracker and reconnect policy.
// A fresh ircevent.Connection is built per connect so stale sockets never
// leak handlers into a new session.
type Bot struct {
	cfg     Config
	tracker *ircstate.Tracker
	recon   *backoff.Reconnector
	onMsg   MessageHandler

	mu        sync.Mutex
	conn      *ircevent.Connection
	connected bool
	serverIdx int
	prefixes  map[rune]rune

	fatal chan error
}

// New validates the configuration and returns an unconnected bot.
func New(cfg Config, tracker *ircstate.Tracker, recon *backoff.Reconnector, onMsg MessageHandler) (*Bot, error) {
	if len(cfg.Servers) == 0 {
		return nil, ErrNoServers
	}
	if len(cfg.Channels) == 0 {
		return nil, ErrNoChannels
	}
	if cfg.Version == "" {
		cfg.Version = "urbit-irc-bridge"
	}
	return &Bot{
		cfg:      cfg,
		tracker:  tracker,
		recon:    recon,
		onMsg:    onMsg,
		prefixes: map[rune]rune{'@': 'o', '+': 'v'},
		fatal:    make(chan error, 1),
	}, nil
}

// Run connects and blocks until the context is canceled, the reconnect policy
// is exhausted, or the server reports a fatal registration error.
func (b *Bot) Run(ctx context.Context) error {
	b.Connect()
	select {
	case <-ctx.Done():
		b.quit()
		return ctx.Err()
	case <-b.recon.Exhausted():
		b.quit()
		return backoff.ErrReconnectExhausted
	case err := <-b.fatal:
		b.quit()
		return err
	}
}

// Connect dials the current server in the rotation. A dial failure is treated
// as an immediate disconnect so the backoff policy takes over.
func (b *Bot) Connect() {
	b.mu.Lock()
	spec := b.cfg.Servers[b.serverIdx]
	conn := &ircevent.Connection{
		Server:        fmt.Sprintf("%s:%d", spec.Host, spec.Port),
		Nick:          b.cfg.Nick,
		User:          b.cfg.Nick,
		RealName:      b.cfg.Nick,
		UseTLS:        b.cfg.UseTLS,
		Password:      spec.Password,
		ReconnectFreq: 0, // rotation and retry belong to the backoff policy
	}
	b.conn = conn
	b.mu.Unlock()

	b.setupHandlers(conn)

	slog.Info("connecting to irc", slog.String("server", conn.Server), slog.String("nick", b.cfg.Nick))
	if err := conn.Connect(); err != nil {
		slog.Warn("irc dial failed", slog.String("server", conn.Server), slog.Any("err", err))
		b.handleDisconnect(conn)
		return
	}
	go conn.Loop()
}

// Connected reports whether the current session has a live connection.
func (b *Bot) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// JumpServer closes any live connection, advances the rotation to the next
// endpoint and connects there.
func (b *Bot) JumpServer() {
	b.mu.Lock()
	conn := b.conn
	connected := b.connected
	b.serverIdx = (b.serverIdx + 1) % len(b.cfg.Servers)
	next := b.cfg.Servers[b.serverIdx]
	b.mu.Unlock()

	slog.Info("jumping server", slog.String("next", fmt.Sprintf("%s:%d", next.Host, next.Port)))
	if connected && conn != nil {
		conn.Quit()
	}
	b.Connect()
}

// SendText delivers one line of text to an IRC target.
func (b *Bot) SendText(target, text string) error {
	b.mu.Lock()
	conn := b.conn
	connected := b.connected
	b.mu.Unlock()
	if !connected || conn == nil {
		return errors.New("ircbot: not connected")
	}
	return conn.Privmsg(target, text)
}

// Reconnect tears down the current session and rotates to the next server.
func (b *Bot) Reconnect(ctx context.Context) error {
	b.JumpServer()
	return nil
}

// Tracker exposes the membership state for status reporting.
func (b *Bot) Tracker() *ircstate.Tracker {
	return b.tracker
}

func (b *Bot) quit() {
	b.mu.Lock()
	conn := b.conn
	connected := b.connected
	b.connected = false
	b.mu.Unlock()
	if connected && conn != nil {
		conn.Quit()
	}
}

func (b *Bot) fatalErr(err error) {
	select {
	case b.fatal <- err:
	default:
	}
}

// handleDisconnect runs for both real socket drops and synthesized ones from
// dial failures. Membership knowledge is stale the moment the link drops.
func (b *Bot) handleDisconnect(conn *ircevent.Connection) {
	b.mu.Lock()
	if conn != b.conn {
		// A quit old session; the replacement owns the state now.
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.tracker.Reset()
	b.mu.Unlock()

	telemetry.IRCReconnects.Inc()
	if err := b.recon.Disconnected(b); err != nil {
		slog.Error("irc reconnect attempts exhausted", slog.String("nick", b.cfg.Nick))
	}
}

func (b *Bot) setupHandlers(conn *ircevent.Connection) {
	conn.AddConnectCallback(func(e ircmsg.Message) {
		b.mu.Lock()
		b.connected = true
		b.mu.Unlock()
		slog.Info("irc registered", slog.String("server", conn.Server))
		for _, ch := range b.cfg.Channels {
			if err := conn.Join(ch); err != nil {
				slog.Warn("join failed", slog.String("channel", ch), slog.Any("err", err))
			}
		}
	})

	conn.AddDisconnectCallback(func(e ircmsg.Message) {
		slog.Warn("irc disconnected", slog.String("server", conn.Server))
		b.handleDisconnect(conn)
	})

	conn.AddCallback("433", func(e ircmsg.Message) {
		b.fatalErr(ErrNicknameInUse)
	})

	conn.AddCallback("JOIN", func(e ircmsg.Message) {
		if len(e.Params) < 1 {
			return
		}
		b.mu.Lock()
		b.tracker.Join(e.Params[0], e.Nick())
		b.mu.Unlock()
	})

	conn.AddCallback("PART", func(e ircmsg.Message) {
		if len(e.Params) < 1 {
			return
		}
		b.mu.Lock()
		b.tracker.Part(e.Params[0], e.Nick())
		b.mu.Unlock()
	})

	conn.AddCallback("KICK", func(e ircmsg.Message) {
		if len(e.Params) < 2 {
			return
		}
		b.mu.Lock()
		b.tracker.Kick(e.Params[0], e.Params[1])
		b.mu.Unlock()
	})

	conn.AddCallback("QUIT", func(e ircmsg.Message) {
		b.mu.Lock()
		b.tracker.Quit(e.Nick())
		b.mu.Unlock()
	})

	conn.AddCallback("NICK", func(e ircmsg.Message) {
		if len(e.Params) < 1 {
			return
		}
		b.mu.Lock()
		b.tracker.NickChange(e.Nick(), e.Params[0])
		b.mu.Unlock()
	})

	conn.AddCallback("MODE", func(e ircmsg.Message) {
		if len(e.Params) < 2 || !isChannel(e.Params[0]) {
			return
		}
		changes := parseChannelModes(e.Params[1:])
		b.mu.Lock()
		for _, c := range changes {
			b.tracker.ModeChange(e.Params[0], c.Op, c.Mode, c.Arg)
		}
		b.mu.Unlock()
	})

	// RPL_NAMREPLY: params are self, visibility, channel, nick list.
	conn.AddCallback("353", func(e ircmsg.Message) {
		if len(e.Params) < 4 {
			return
		}
		b.mu.Lock()
		b.tracker.NamesReply(e.Params[2], e.Params[3], b.prefixes)
		b.mu.Unlock()
	})

	// RPL_ISUPPORT: adopt the server's PREFIX table when advertised.
	conn.AddCallback("005", func(e ircmsg.Message) {
		for _, param := range e.Params {
			const key = "PREFIX="
			if len(param) <= len(key) || param[:len(key)] != key {
				continue
			}
			table, letters, ok := parsePrefix(param[len(key):])
			if !ok {
				continue
			}
			b.mu.Lock()
			b.prefixes = table
			b.tracker.SetNickModes(letters)
			b.mu.Unlock()
		}
	})

	conn.AddCallback("PRIVMSG", func(e ircmsg.Message) {
		if len(e.Params) < 2 {
			return
		}
		target, text := e.Params[0], e.Params[1]
		if verb, args, ok := parseCTCP(text); ok {
			b.handleCTCP(conn, e.Nick(), verb, args)
			return
		}
		if !isChannel(target) || b.onMsg == nil {
			return
		}
		b.onMsg(target, e.Nick(), text)
	})
}

// handleCTCP answers VERSION and PING queries with a CTCP notice; anything
// else is ignored.
func (b *Bot) handleCTCP(conn *ircevent.Connection, from, verb, args string) {
	switch verb {
	case "VERSION":
		conn.Notice(from, "\x01VERSION "+b.cfg.Version+"\x01")
	case "PING":
		reply := "\x01PING"
		if args != "" {
			reply += " " + args
		}
		conn.Notice(from, reply+"\x01")
	}
}
