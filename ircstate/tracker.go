// Package ircstate reconstructs channel membership and role state from the
// stream of asynchronous membership events an IRC connection produces. A
// channel is tracked if and only if the local identity is currently a member
// of it; everything is discarded on disconnect because events missed during an
// outage cannot be reconciled.
package ircstate

import "strings"

// ModeOp is the direction of a mode change: grant or revoke.
type ModeOp int

const (
	ModeSet ModeOp = iota
	ModeClear
)

// Tracker maintains the per-channel state for one connection. All methods are
// synchronous state transitions invoked from the connection's event loop.
type Tracker struct {
	self      string
	channels  map[string]*Channel
	nickModes map[string]struct{} // mode letters that apply to a nick, not the channel
}

// NewTracker returns an empty tracker for the given local nickname. Operator
// and voice are treated as per-nick modes until the server advertises its own
// prefix table.
func NewTracker(self string) *Tracker {
	t := &Tracker{
		self:     self,
		channels: make(map[string]*Channel),
	}
	t.SetNickModes("ov")
	return t
}

// SetNickModes replaces the set of mode letters treated as per-nick role
// flags, typically the letters from the server's ISUPPORT PREFIX value.
func (t *Tracker) SetNickModes(letters string) {
	t.nickModes = make(map[string]struct{}, len(letters))
	for _, r := range letters {
		t.nickModes[string(r)] = struct{}{}
	}
}

// Self returns the tracked local nickname.
func (t *Tracker) Self() string {
	return t.self
}

// Join records a join event. The local identity's own join creates the
// channel entry; any join adds the nick to the member set.
func (t *Tracker) Join(channel, nick string) {
	if nick == t.self {
		t.channels[channel] = newChannel()
	}
	if ch, ok := t.channels[channel]; ok {
		ch.AddUser(nick)
	}
}

// Part records a part event. The local identity parting destroys the channel
// entry; anyone else is removed from the member set.
func (t *Tracker) Part(channel, nick string) {
	t.leave(channel, nick)
}

// Kick records a kick event, keyed off the kicked nick from the event payload.
func (t *Tracker) Kick(channel, nick string) {
	t.leave(channel, nick)
}

func (t *Tracker) leave(channel, nick string) {
	ch, ok := t.channels[channel]
	if !ok {
		return
	}
	if nick == t.self {
		delete(t.channels, channel)
		return
	}
	ch.RemoveUser(nick)
}

// Quit removes the nick from every channel it is present in; a quit is not
// scoped to one channel.
func (t *Tracker) Quit(nick string) {
	for _, ch := range t.channels {
		if ch.HasUser(nick) {
			ch.RemoveUser(nick)
		}
	}
}

// NickChange renames a nick across every channel where it is present,
// preserving role flags. A rename of the local identity is tracked so later
// own-join/own-part events keep working.
func (t *Tracker) NickChange(before, after string) {
	if before == t.self {
		t.self = after
	}
	for _, ch := range t.channels {
		ch.ChangeNick(before, after)
	}
}

// ModeChange applies a single parsed mode change to a tracked channel. Mode
// letters in the per-nick set mutate the named member's role flags; all other
// letters mutate channel-level modes.
func (t *Tracker) ModeChange(channel string, op ModeOp, mode, arg string) {
	ch, ok := t.channels[channel]
	if !ok {
		return
	}
	if _, perNick := t.nickModes[mode]; perNick {
		if op == ModeSet {
			ch.SetNickMode(mode, arg)
		} else {
			ch.ClearNickMode(mode, arg)
		}
		return
	}
	if op == ModeSet {
		ch.SetMode(mode, arg)
	} else {
		ch.ClearMode(mode)
	}
}

// NamesReply bulk-initializes membership from a RPL_NAMREPLY. The channel
// token "*" means the server sees us in no visible channel and mutates
// nothing. Each whitespace-separated nick may carry a leading role prefix
// character, resolved through the adapter's advertised prefix table.
func (t *Tracker) NamesReply(channel, nickList string, prefixes map[rune]rune) {
	if channel == "*" {
		return
	}
	ch, ok := t.channels[channel]
	if !ok {
		// NAMES for a channel we are in but whose join we created no entry
		// for (e.g. replayed after a restart); initialize it.
		ch = newChannel()
		t.channels[channel] = ch
	}
	for _, nick := range strings.Fields(nickList) {
		var modes []string
		for len(nick) > 0 {
			mode, ok := prefixes[rune(nick[0])]
			if !ok {
				break
			}
			modes = append(modes, string(mode))
			nick = nick[1:]
		}
		if nick == "" {
			continue
		}
		ch.AddUser(nick)
		for _, mode := range modes {
			ch.SetNickMode(mode, nick)
		}
	}
}

// Reset discards the entire channel map; membership knowledge is stale after
// a disconnect.
func (t *Tracker) Reset() {
	t.channels = make(map[string]*Channel)
}

// Channel returns the tracked state for a channel, if any.
func (t *Tracker) Channel(name string) (*Channel, bool) {
	ch, ok := t.channels[name]
	return ch, ok
}

// Channels returns the names of all tracked channels.
func (t *Tracker) Channels() []string {
	out := make([]string, 0, len(t.channels))
	for name := range t.channels {
		out = append(out, name)
	}
	return out
}
