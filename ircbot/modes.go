package ircbot

import (
	"strings"

	"github.com/onnwee/urbit-irc-bridge/ircstate"
)

// modeChange is one parsed channel mode mutation.
type modeChange struct {
	Op   ircstate.ModeOp
	Mode string
	Arg  string
}

// parseChannelModes expands a MODE parameter list ("+ov alice bob") into
// individual changes. Modes b, k, o, v always consume an argument; l only
// when set, per the RFC 1459 channel mode grammar.
func parseChannelModes(params []string) []modeChange {
	if len(params) == 0 {
		return nil
	}
	args := params[1:]
	op := ircstate.ModeSet
	var out []modeChange
	for _, r := range params[0] {
		switch r {
		case '+':
			op = ircstate.ModeSet
		case '-':
			op = ircstate.ModeClear
		default:
			mode := string(r)
			arg := ""
			if modeTakesArg(mode, op) && len(args) > 0 {
				arg = args[0]
				args = args[1:]
			}
			out = append(out, modeChange{Op: op, Mode: mode, Arg: arg})
		}
	}
	return out
}

func modeTakesArg(mode string, op ircstate.ModeOp) bool {
	if strings.Contains("bkov", mode) {
		return true
	}
	return mode == "l" && op == ircstate.ModeSet
}

// parsePrefix parses an ISUPPORT PREFIX value such as "(ov)@+" into a map
// from prefix character to mode letter, plus the mode letters themselves.
func parsePrefix(value string) (map[rune]rune, string, bool) {
	open := strings.IndexRune(value, '(')
	if open == -1 {
		return nil, "", false
	}
	closing := strings.IndexRune(value[open:], ')')
	if closing == -1 {
		return nil, "", false
	}
	closing += open

	modes := []rune(value[open+1 : closing])
	prefixes := []rune(value[closing+1:])
	table := make(map[rune]rune, len(modes))
	for i := 0; i < len(modes) && i < len(prefixes); i++ {
		table[prefixes[i]] = modes[i]
	}
	return table, string(modes), true
}

// parseCTCP unwraps a \x01-delimited CTCP payload into verb and arguments.
func parseCTCP(text string) (verb, args string, ok bool) {
	if len(text) < 2 || text[0] != '\x01' || text[len(text)-1] != '\x01' {
		return "", "", false
	}
	fields := strings.SplitN(text[1:len(text)-1], " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return "", "", false
	}
	verb = strings.ToUpper(fields[0])
	if len(fields) > 1 {
		args = fields[1]
	}
	return verb, args, true
}

// isChannel reports whether an IRC target names a channel.
func isChannel(target string) bool {
	return len(target) > 0 && (target[0] == '#' || target[0] == '&')
}
