// Package config loads the bridge configuration: a JSON file describing the
// bridge instances plus environment variables for runtime knobs. Defaults are
// applied so the binary can run locally with minimal setup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultConfigPath    = "config.json"
	defaultIRCPort       = 6667
	defaultHTTPAddr      = ":8080"
	defaultQueueSize     = 256
	defaultDrainInterval = 100 * time.Millisecond
)

// ChannelPairing links one IRC channel to one Urbit graph resource.
type ChannelPairing struct {
	IRCChannel   string `json:"irc_channel"`
	ResourceShip string `json:"resource_ship"`
	UrbitChannel string `json:"urbit_channel"`
}

// IRCServer is one endpoint in an instance's server rotation.
type IRCServer struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// Instance is one fully resolved bridge instance: an Urbit session paired
// with one IRC connection and its channel pairings.
type Instance struct {
	Name string

	UrbitURL   string
	ClientShip string
	UrbitCode  string

	IRCNickname string
	IRCServers  []IRCServer
	IRCUseTLS   bool

	Channels []ChannelPairing
}

// Config is the full runtime configuration.
type Config struct {
	Instances []Instance

	HTTPAddr      string
	QueueSize     int
	DrainInterval time.Duration
}

// botEntry and instanceEntry mirror the JSON config file layout: a list of
// Urbit sessions, each carrying one or more typed bot definitions.
type botEntry struct {
	Type        string           `json:"type"`
	IRCNickname string           `json:"irc_nickname"`
	IRCHostname string           `json:"irc_hostname"`
	IRCPort     int              `json:"irc_port"`
	IRCPassword string           `json:"irc_password"`
	IRCServers  []IRCServer      `json:"irc_servers"`
	IRCUseTLS   bool             `json:"irc_use_tls"`
	Channels    []ChannelPairing `json:"channels"`
}

// servers resolves the rotation list: an explicit irc_servers list wins,
// otherwise the single-host fields form a one-entry rotation.
func (b *botEntry) servers() []IRCServer {
	list := b.IRCServers
	if len(list) == 0 && b.IRCHostname != "" {
		list = []IRCServer{{Hostname: b.IRCHostname, Port: b.IRCPort, Password: b.IRCPassword}}
	}
	for i := range list {
		if list[i].Port == 0 {
			list[i].Port = defaultIRCPort
		}
	}
	return list
}

type instanceEntry struct {
	UrbitURL   string     `json:"urbit_url"`
	ClientShip string     `json:"client_ship"`
	UrbitCode  string     `json:"urbit_code"`
	Bots       []botEntry `json:"bots"`
}

// Load reads the JSON config named by BRIDGE_CONFIG (default config.json)
// and the environment knobs, validates, and returns the typed configuration.
func Load() (*Config, error) {
	path := os.Getenv("BRIDGE_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}

	cfg.QueueSize = defaultQueueSize
	if v := os.Getenv("BRIDGE_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid BRIDGE_QUEUE_SIZE %q", v)
		}
		cfg.QueueSize = n
	}

	cfg.DrainInterval = defaultDrainInterval
	if v := os.Getenv("BRIDGE_DRAIN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid BRIDGE_DRAIN_INTERVAL %q", v)
		}
		cfg.DrainInterval = d
	}

	return cfg, nil
}

// Parse decodes the JSON instance list and flattens each typed bot entry into
// an Instance. An unknown bot type is a hard error so a misspelled config
// fails loudly instead of silently running fewer bridges.
func Parse(raw []byte) (*Config, error) {
	var entries []instanceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no instances configured")
	}

	cfg := &Config{}
	for i, entry := range entries {
		for j, bot := range entry.Bots {
			if bot.Type != "irc" {
				return nil, fmt.Errorf("instance %d bot %d: unknown bot type %q", i, j, bot.Type)
			}
			inst := Instance{
				Name:        fmt.Sprintf("%s/%s", entry.ClientShip, bot.IRCNickname),
				UrbitURL:    entry.UrbitURL,
				ClientShip:  entry.ClientShip,
				UrbitCode:   entry.UrbitCode,
				IRCNickname: bot.IRCNickname,
				IRCServers:  bot.servers(),
				IRCUseTLS:   bot.IRCUseTLS,
				Channels:    bot.Channels,
			}
			if err := inst.validate(); err != nil {
				return nil, fmt.Errorf("instance %d bot %d: %w", i, j, err)
			}
			cfg.Instances = append(cfg.Instances, inst)
		}
	}
	if len(cfg.Instances) == 0 {
		return nil, fmt.Errorf("no bots configured")
	}
	return cfg, nil
}

func (in *Instance) validate() error {
	switch {
	case in.UrbitURL == "":
		return fmt.Errorf("missing urbit_url")
	case in.ClientShip == "":
		return fmt.Errorf("missing client_ship")
	case in.UrbitCode == "":
		return fmt.Errorf("missing urbit_code")
	case in.IRCNickname == "":
		return fmt.Errorf("missing irc_nickname")
	case len(in.IRCServers) == 0:
		return fmt.Errorf("missing irc_hostname or irc_servers")
	case len(in.Channels) == 0:
		return fmt.Errorf("no channels configured")
	}
	for i, srv := range in.IRCServers {
		if srv.Hostname == "" {
			return fmt.Errorf("server %d: missing hostname", i)
		}
	}
	for i, ch := range in.Channels {
		if ch.IRCChannel == "" || ch.ResourceShip == "" || ch.UrbitChannel == "" {
			return fmt.Errorf("channel %d: irc_channel, resource_ship and urbit_channel are all required", i)
		}
	}
	return nil
}
