package ircstate

// Channel holds the membership, per-nick role flags, and channel-level modes
// of a single channel the bot is currently joined to. All mutation happens on
// the connection's event loop, so Channel itself carries no lock.
type Channel struct {
	members   map[string]struct{}
	nickModes map[string]map[string]struct{} // mode letter -> nicks holding it
	modes     map[string]string              // channel-level mode letter -> optional argument
}

func newChannel() *Channel {
	return &Channel{
		members:   make(map[string]struct{}),
		nickModes: make(map[string]map[string]struct{}),
		modes:     make(map[string]string),
	}
}

// AddUser adds nick to the member set. Adding a present member is a no-op.
func (c *Channel) AddUser(nick string) {
	c.members[nick] = struct{}{}
}

// RemoveUser removes nick and drops any role flags it held, keeping the
// invariant that every role-flag entry names a present member.
func (c *Channel) RemoveUser(nick string) {
	delete(c.members, nick)
	for mode, nicks := range c.nickModes {
		delete(nicks, nick)
		if len(nicks) == 0 {
			delete(c.nickModes, mode)
		}
	}
}

// HasUser reports whether nick is a member.
func (c *Channel) HasUser(nick string) bool {
	_, ok := c.members[nick]
	return ok
}

// ChangeNick renames a member in place, preserving its role flags.
func (c *Channel) ChangeNick(before, after string) {
	if !c.HasUser(before) {
		return
	}
	delete(c.members, before)
	c.members[after] = struct{}{}
	for _, nicks := range c.nickModes {
		if _, ok := nicks[before]; ok {
			delete(nicks, before)
			nicks[after] = struct{}{}
		}
	}
}

// SetNickMode grants a role flag (e.g. "o", "v") to a present member.
func (c *Channel) SetNickMode(mode, nick string) {
	if !c.HasUser(nick) {
		return
	}
	nicks, ok := c.nickModes[mode]
	if !ok {
		nicks = make(map[string]struct{})
		c.nickModes[mode] = nicks
	}
	nicks[nick] = struct{}{}
}

// ClearNickMode revokes a role flag from a member.
func (c *Channel) ClearNickMode(mode, nick string) {
	nicks, ok := c.nickModes[mode]
	if !ok {
		return
	}
	delete(nicks, nick)
	if len(nicks) == 0 {
		delete(c.nickModes, mode)
	}
}

// HasNickMode reports whether nick holds the given role flag.
func (c *Channel) HasNickMode(mode, nick string) bool {
	_, ok := c.nickModes[mode][nick]
	return ok
}

// SetMode sets a channel-level mode with its optional argument.
func (c *Channel) SetMode(mode, arg string) {
	c.modes[mode] = arg
}

// ClearMode removes a channel-level mode.
func (c *Channel) ClearMode(mode string) {
	delete(c.modes, mode)
}

// HasMode reports whether a channel-level mode is set.
func (c *Channel) HasMode(mode string) bool {
	_, ok := c.modes[mode]
	return ok
}

// Members returns the current member nicknames in no particular order.
func (c *Channel) Members() []string {
	out := make([]string, 0, len(c.members))
	for nick := range c.members {
		out = append(out, nick)
	}
	return out
}
