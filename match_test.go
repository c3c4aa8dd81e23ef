package dbus

import (
	"testing"

	"github.com/creachadair/mds/value"
)

func TestMatchRuleFilterString(t *testing.T) {
	tests := []struct {
		name string
		rule MatchRule
		want string
	}{
		{
			name: "empty",
			rule: MatchRule{},
			want: "type='signal'",
		},
		{
			name: "interface and member",
			rule: MatchRule{
				Interface: value.Just(MustInterfaceName("com.example.Thing")),
				Member:    value.Just(MustMemberName("Changed")),
			},
			want: "type='signal',interface='com.example.Thing',member='Changed'",
		},
		{
			name: "sender only",
			rule: MatchRule{
				Sender: value.Just(MustBusName(":1.1")),
			},
			want: `type='signal',sender=':1.1'`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rule.FilterString(); got != tc.want {
				t.Errorf("FilterString() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMatchRuleMatches(t *testing.T) {
	iface := MustInterfaceName("com.example.Thing")
	otherIface := MustInterfaceName("com.example.Other")
	member := MustMemberName("Changed")
	path := MustObjectPath("/com/example/obj")

	sig := &Signal{
		Path:      path,
		Interface: iface,
		Member:    member,
		Sender:    value.Just(MustBusName(":1.2")),
	}

	tests := []struct {
		name string
		rule MatchRule
		want bool
	}{
		{"empty rule matches anything", MatchRule{}, true},
		{"matching interface", MatchRule{Interface: value.Just(iface)}, true},
		{"mismatched interface", MatchRule{Interface: value.Just(otherIface)}, false},
		{"matching path and member", MatchRule{Path: value.Just(path), Member: value.Just(member)}, true},
		{"mismatched sender", MatchRule{Sender: value.Just(MustBusName(":1.9"))}, false},
		{"matching sender", MatchRule{Sender: value.Just(MustBusName(":1.2"))}, true},
		{"destination unset on signal fails destination filter", MatchRule{Destination: value.Just(MustBusName(":1.3"))}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rule.Matches(sig); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}
