package bridge

import "strings"

// Pairing links one IRC channel with one Urbit graph resource. Messages are
// relayed only between paired endpoints; everything else is dropped silently.
type Pairing struct {
	IRCChannel   string
	ResourceShip string
	UrbitChannel string
}

// Pairings is the ordered pairing list for one bridge instance.
type Pairings []Pairing

// MatchIRC returns every pairing whose IRC channel matches.
func (ps Pairings) MatchIRC(channel string) []Pairing {
	var out []Pairing
	for _, p := range ps {
		if p.IRCChannel == channel {
			out = append(out, p)
		}
	}
	return out
}

// MatchResource returns every pairing whose Urbit resource matches the given
// host ship and resource name. Ship names compare without the leading sig so
// "~zod" in the config matches "zod" on the wire.
func (ps Pairings) MatchResource(hostShip, resourceName string) []Pairing {
	hostShip = strings.TrimPrefix(hostShip, "~")
	var out []Pairing
	for _, p := range ps {
		if strings.TrimPrefix(p.ResourceShip, "~") == hostShip && p.UrbitChannel == resourceName {
			out = append(out, p)
		}
	}
	return out
}

// IRCChannels returns the distinct IRC channels named by the pairings, in
// first-seen order. These are the channels the bot joins at registration.
func (ps Pairings) IRCChannels() []string {
	seen := make(map[string]struct{}, len(ps))
	var out []string
	for _, p := range ps {
		if _, ok := seen[p.IRCChannel]; ok {
			continue
		}
		seen[p.IRCChannel] = struct{}{}
		out = append(out, p.IRCChannel)
	}
	return out
}
