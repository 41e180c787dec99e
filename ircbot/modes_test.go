package ircbot

import (
	"reflect"
	"testing"

	"github.com/onnwee/urbit-irc-bridge/ircstate"
)

func TestParseChannelModes(t *testing.T) {
	cases := []struct {
		name   string
		params []string
		want   []modeChange
	}{
		{
			name:   "grant op and voice",
			params: []string{"+ov", "alice", "bob"},
			want: []modeChange{
				{Op: ircstate.ModeSet, Mode: "o", Arg: "alice"},
				{Op: ircstate.ModeSet, Mode: "v", Arg: "bob"},
			},
		},
		{
			name:   "mixed set and clear",
			params: []string{"+o-v", "alice", "bob"},
			want: []modeChange{
				{Op: ircstate.ModeSet, Mode: "o", Arg: "alice"},
				{Op: ircstate.ModeClear, Mode: "v", Arg: "bob"},
			},
		},
		{
			name:   "limit consumes arg only when set",
			params: []string{"+l", "50"},
			want: []modeChange{
				{Op: ircstate.ModeSet, Mode: "l", Arg: "50"},
			},
		},
		{
			name:   "limit clear takes no arg",
			params: []string{"-l"},
			want: []modeChange{
				{Op: ircstate.ModeClear, Mode: "l", Arg: ""},
			},
		},
		{
			name:   "channel flags without args",
			params: []string{"+nt"},
			want: []modeChange{
				{Op: ircstate.ModeSet, Mode: "n", Arg: ""},
				{Op: ircstate.ModeSet, Mode: "t", Arg: ""},
			},
		},
		{
			name:   "key takes arg",
			params: []string{"+k", "sekrit"},
			want: []modeChange{
				{Op: ircstate.ModeSet, Mode: "k", Arg: "sekrit"},
			},
		},
		{
			name:   "empty params",
			params: nil,
			want:   nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseChannelModes(tc.params)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseChannelModes(%v) = %v, want %v", tc.params, got, tc.want)
			}
		})
	}
}

func TestParsePrefix(t *testing.T) {
	table, letters, ok := parsePrefix("(ov)@+")
	if !ok {
		t.Fatal("expected PREFIX value to parse")
	}
	if letters != "ov" {
		t.Errorf("letters = %q, want %q", letters, "ov")
	}
	if table['@'] != 'o' || table['+'] != 'v' {
		t.Errorf("table = %v, want @->o +->v", table)
	}
}

func TestParsePrefixExtendedTable(t *testing.T) {
	table, letters, ok := parsePrefix("(qaohv)~&@%+")
	if !ok {
		t.Fatal("expected PREFIX value to parse")
	}
	if letters != "qaohv" {
		t.Errorf("letters = %q, want %q", letters, "qaohv")
	}
	if table['%'] != 'h' || table['~'] != 'q' {
		t.Errorf("table = %v, want %%->h ~->q", table)
	}
}

func TestParsePrefixMalformed(t *testing.T) {
	for _, v := range []string{"", "ov@+", "(ov@+"} {
		if _, _, ok := parsePrefix(v); ok {
			t.Errorf("parsePrefix(%q) parsed, want failure", v)
		}
	}
}

func TestParseCTCP(t *testing.T) {
	verb, args, ok := parseCTCP("\x01VERSION\x01")
	if !ok || verb != "VERSION" || args != "" {
		t.Errorf("got (%q, %q, %v), want (VERSION, \"\", true)", verb, args, ok)
	}

	verb, args, ok = parseCTCP("\x01PING 12345\x01")
	if !ok || verb != "PING" || args != "12345" {
		t.Errorf("got (%q, %q, %v), want (PING, 12345, true)", verb, args, ok)
	}

	if _, _, ok := parseCTCP("plain text"); ok {
		t.Error("plain text parsed as CTCP")
	}
	if _, _, ok := parseCTCP("\x01\x01"); ok {
		t.Error("empty CTCP payload parsed")
	}
}

func TestIsChannel(t *testing.T) {
	for target, want := range map[string]bool{
		"#general": true,
		"&local":   true,
		"alice":    false,
		"":         false,
	} {
		if got := isChannel(target); got != want {
			t.Errorf("isChannel(%q) = %v, want %v", target, got, want)
		}
	}
}

func TestNewValidates(t *testing.T) {
	tracker := ircstate.NewTracker("bot")

	_, err := New(Config{Nick: "bot", Channels: []string{"#a"}}, tracker, nil, nil)
	if err != ErrNoServers {
		t.Errorf("err = %v, want ErrNoServers", err)
	}

	_, err = New(Config{Nick: "bot", Servers: []ServerSpec{{Host: "irc.example.org", Port: 6667}}}, tracker, nil, nil)
	if err != ErrNoChannels {
		t.Errorf("err = %v, want ErrNoChannels", err)
	}
}
