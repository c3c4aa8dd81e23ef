package dbus

import (
	"strings"

	"github.com/creachadair/mds/value"
)

// MatchRule is a filter over signal messages: a conjunction of the
// optional fields that are present. A rule with no fields set
// matches every signal.
type MatchRule struct {
	Sender      value.Maybe[BusName]
	Destination value.Maybe[BusName]
	Path        value.Maybe[ObjectPath]
	Interface   value.Maybe[InterfaceName]
	Member      value.Maybe[MemberName]
}

// Matches reports whether s satisfies every field r has set.
func (r MatchRule) Matches(s *Signal) bool {
	if v, ok := r.Sender.GetOK(); ok {
		sender, senderOK := s.Sender.GetOK()
		if !senderOK || sender != v {
			return false
		}
	}
	if v, ok := r.Destination.GetOK(); ok {
		dest, destOK := s.Destination.GetOK()
		if !destOK || dest != v {
			return false
		}
	}
	if v, ok := r.Path.GetOK(); ok && s.Path != v {
		return false
	}
	if v, ok := r.Interface.GetOK(); ok && s.Interface != v {
		return false
	}
	if v, ok := r.Member.GetOK(); ok && s.Member != v {
		return false
	}
	return true
}

// FilterString formats r in the daemon's AddMatch string syntax:
// comma-joined key='value' predicates, always starting with
// type='signal' and followed by r's fields in the fixed order sender,
// destination, path, interface, member. Fields that aren't set are
// omitted.
func (r MatchRule) FilterString() string {
	preds := []string{"type='signal'"}
	if v, ok := r.Sender.GetOK(); ok {
		preds = append(preds, kv("sender", string(v)))
	}
	if v, ok := r.Destination.GetOK(); ok {
		preds = append(preds, kv("destination", string(v)))
	}
	if v, ok := r.Path.GetOK(); ok {
		preds = append(preds, kv("path", string(v)))
	}
	if v, ok := r.Interface.GetOK(); ok {
		preds = append(preds, kv("interface", string(v)))
	}
	if v, ok := r.Member.GetOK(); ok {
		preds = append(preds, kv("member", string(v)))
	}
	return strings.Join(preds, ",")
}

func kv(key, val string) string {
	return key + "=" + escapeMatchArg(val)
}

func escapeMatchArg(s string) string {
	s = strings.ReplaceAll(s, "'", `'\''`)
	return "'" + s + "'"
}
