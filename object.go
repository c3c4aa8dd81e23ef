package dbus

import (
	"sort"
	"strings"
	"sync"

	"github.com/creachadair/mds/mapset"
)

// MethodHandler answers one incoming method call's body with either
// a return-value list or a structured method error. A returned
// *MethodError (see [Fail]) is sent back with its own name and
// payload; a handler that panics gets mapped to
// org.freedesktop.DBus.Error.Failed by the dispatcher.
type MethodHandler func(body []Variant) ([]Variant, *MethodError)

// MethodDescriptor registers one method under a path: the interface
// and member it answers to, its argument/return signatures (used
// only for introspection; the handler is responsible for decoding
// and encoding its own body), and the handler itself.
type MethodDescriptor struct {
	Interface InterfaceName
	Member    MemberName
	In        Signature
	Out       Signature
	Handler   MethodHandler
}

// SignalDescriptor documents a signal a path may emit, purely for
// introspection: the dispatcher does not otherwise track emitted
// signals per-object.
type SignalDescriptor struct {
	Interface InterfaceName
	Member    MemberName
	Args      Signature
}

// memberInfo is the registry's internal representation of one
// interface member: either a method (handler present) or a signal
// declaration (handler nil).
type memberInfo struct {
	isSignal bool
	in, out  Signature
	handler  MethodHandler
}

const introspectableInterface = InterfaceName("org.freedesktop.DBus.Introspectable")
const introspectMember = MemberName("Introspect")

// objectRegistry is the client's exported-object table: ObjectPath
// → InterfaceName → MemberName → MemberInfo. It is guarded by its
// own mutex; the dispatcher never holds this lock across a user
// callback.
type objectRegistry struct {
	mu      sync.RWMutex
	objects map[ObjectPath]map[InterfaceName]map[MemberName]*memberInfo
}

func newObjectRegistry() *objectRegistry {
	return &objectRegistry{objects: map[ObjectPath]map[InterfaceName]map[MemberName]*memberInfo{}}
}

// export registers methods under path. Multiple calls for the same
// path and interface merge at the member level.
func (r *objectRegistry) export(path ObjectPath, methods []MethodDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ifaces, ok := r.objects[path]
	if !ok {
		ifaces = map[InterfaceName]map[MemberName]*memberInfo{}
		r.objects[path] = ifaces
	}
	for _, m := range methods {
		members, ok := ifaces[m.Interface]
		if !ok {
			members = map[MemberName]*memberInfo{}
			ifaces[m.Interface] = members
		}
		members[m.Member] = &memberInfo{in: m.In, out: m.Out, handler: m.Handler}
	}
}

// exportSignals records signal declarations under path, purely for
// introspection.
func (r *objectRegistry) exportSignals(path ObjectPath, signals []SignalDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ifaces, ok := r.objects[path]
	if !ok {
		ifaces = map[InterfaceName]map[MemberName]*memberInfo{}
		r.objects[path] = ifaces
	}
	for _, s := range signals {
		members, ok := ifaces[s.Interface]
		if !ok {
			members = map[MemberName]*memberInfo{}
			ifaces[s.Interface] = members
		}
		members[s.Member] = &memberInfo{isSignal: true, out: s.Args}
	}
}

// lookup finds the handler for path/iface/member. It reports false
// if the path is unregistered, the interface is unknown, or the
// member is a signal declaration rather than a method.
func (r *objectRegistry) lookup(path ObjectPath, iface InterfaceName, member MemberName) (MethodHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.objects[path][iface]
	if !ok {
		return nil, false
	}
	info, ok := members[member]
	if !ok || info.isSignal || info.handler == nil {
		return nil, false
	}
	return info.handler, true
}

// hasPath reports whether path is registered, with or without
// exported members.
func (r *objectRegistry) hasPath(path ObjectPath) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.objects[path]
	return ok
}

// describe builds the introspection description for path: its own
// interfaces and members, plus (for the root path only) the list of
// other registered top-level child paths. It reports false if path
// was never registered and is not the root, so Introspect on an
// unregistered non-root path returns absent rather than a bogus
// empty description.
func (r *objectRegistry) describe(path ObjectPath) (*ObjectDescription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ifaces, hasOwn := r.objects[path]
	if !hasOwn && path != "/" {
		return nil, false
	}

	desc := &ObjectDescription{Interfaces: map[InterfaceName]*InterfaceDescription{}}
	for ifaceName, members := range ifaces {
		id := &InterfaceDescription{Name: ifaceName}
		for memberName, info := range members {
			if info.isSignal {
				id.Signals = append(id.Signals, &SignalDescription{Name: memberName, Args: argDescs(info.out)})
				continue
			}
			id.Methods = append(id.Methods, &MethodDescription{
				Name: memberName,
				In:   argDescs(info.in),
				Out:  argDescs(info.out),
			})
		}
		desc.Interfaces[ifaceName] = id
	}

	if path == "/" {
		seen := mapset.New[string]()
		for p := range r.objects {
			if p == "/" {
				continue
			}
			if child := firstPathElement(string(p)); child != "" {
				seen.Add(child)
			}
		}
		for child := range seen {
			desc.Children = append(desc.Children, child)
		}
		sort.Strings(desc.Children)
	}

	return desc, true
}

func argDescs(sig Signature) []ArgumentDescription {
	types, err := sig.Types()
	if err != nil {
		return nil
	}
	out := make([]ArgumentDescription, len(types))
	for i, t := range types {
		s, err := NewSignature(t)
		if err != nil {
			continue
		}
		out[i] = ArgumentDescription{Type: s}
	}
	return out
}

// firstPathElement returns the first "/"-separated element below
// the root of p, e.g. "/x/y" -> "x".
func firstPathElement(p string) string {
	trimmed := strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// clear empties the registry, used by disconnect.
func (r *objectRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects = map[ObjectPath]map[InterfaceName]map[MemberName]*memberInfo{}
}
