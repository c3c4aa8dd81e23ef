package dbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/creachadair/mds/value"
)

var (
	busDaemonName      = MustBusName("org.freedesktop.DBus")
	busDaemonPath      = MustObjectPath("/org/freedesktop/DBus")
	busDaemonInterface = MustInterfaceName("org.freedesktop.DBus")

	peerInterface  = InterfaceName("org.freedesktop.DBus.Peer")
	peerPingMember = MemberName("Ping")
)

// ClientOptions configures [ConnectWith].
type ClientOptions struct {
	// Socket configures how the underlying transport is dialed and
	// framed.
	Socket SocketOptions

	// Reconnect is declared for forward compatibility but is not
	// honoured: the attach sequence never retries a failed or
	// dropped connection. Treat as reserved.
	Reconnect bool
}

// connState is the client's connection lifecycle, per the state
// machine: Connecting -> HelloPending -> Ready -> Closed.
type connState int

const (
	stateConnecting connState = iota
	stateHelloPending
	stateReady
	stateClosed
)

// pendingReply is the one-shot slot a blocked [Client.call] waits
// on: exactly one of the three fields is set when the slot is
// filled.
type pendingReply struct {
	Return    *MethodReturn
	MethodErr *MethodError
	ClientErr error
}

type signalHandler struct {
	rule MatchRule
	fn   func(*Signal)
}

// Client is a connected D-Bus client: a dispatcher multiplexing one
// socket into outgoing-call correlation, signal delivery, and
// server-side method export.
//
// A Client is safe for concurrent use.
type Client struct {
	socket     Socket
	uniqueName BusName

	mu       sync.Mutex
	state    connState
	pending  map[Serial]chan pendingReply
	handlers []signalHandler
	objects  *objectRegistry
}

// Connect opens a connection to the D-Bus daemon listening on the
// Unix domain socket at address, and completes the attach sequence
// (receive loop, root introspection object, Hello call).
func Connect(ctx context.Context, address string) (*Client, error) {
	return ConnectWith(ctx, address, ClientOptions{})
}

// ConnectWith is [Connect] with explicit options.
func ConnectWith(ctx context.Context, address string, opts ClientOptions) (*Client, error) {
	socket, err := OpenSocket(ctx, address, opts.Socket)
	if err != nil {
		return nil, err
	}
	return ConnectSocket(ctx, socket)
}

// ConnectSocket completes the attach sequence (receive loop, root
// introspection object, Hello call) over an already-open [Socket].
// Most callers want [Connect] or [ConnectWith]; ConnectSocket exists
// so tests can attach a client to a fake in-process Socket, such as
// the one dbustest provides, without dialing a real transport.
func ConnectSocket(ctx context.Context, socket Socket) (*Client, error) {
	c := &Client{
		socket:  socket,
		state:   stateConnecting,
		pending: map[Serial]chan pendingReply{},
		objects: newObjectRegistry(),
	}
	// Step 3 of the attach sequence: the root object exists (and so
	// answers Introspect) even before any user export.
	c.objects.export("/", nil)

	go c.receiveLoop()

	c.mu.Lock()
	c.state = stateHelloPending
	c.mu.Unlock()

	reply, err := c.call(ctx, &MethodCall{
		Path:        busDaemonPath,
		Member:      MustMemberName("Hello"),
		Interface:   value.Just(busDaemonInterface),
		Destination: value.Just(busDaemonName),
	})
	if err != nil {
		c.teardown(nil)
		return nil, err
	}
	if len(reply.Body) == 1 {
		if a, ok := reply.Body[0].Value.AsAtom(); ok {
			if s, ok := a.Text(); ok {
				c.uniqueName = BusName(s)
			}
		}
	}

	c.mu.Lock()
	c.state = stateReady
	c.mu.Unlock()

	return c, nil
}

// LocalName returns the unique bus name the daemon assigned this
// connection during Hello.
func (c *Client) LocalName() BusName {
	return c.uniqueName
}

// Call issues a method call and blocks for the reply, or until ctx
// is done. A D-Bus-level failure is returned as a *MethodError; a
// connection-level failure as a ClientError.
func (c *Client) Call(ctx context.Context, destination BusName, path ObjectPath, iface InterfaceName, member MemberName, args []Variant) ([]Variant, error) {
	reply, err := c.call(ctx, &MethodCall{
		Path:        path,
		Member:      member,
		Interface:   value.Just(iface),
		Destination: value.Just(destination),
		Body:        args,
	})
	if err != nil {
		return nil, err
	}
	return reply.Body, nil
}

// call is the internal call path shared by Call, the attach
// sequence's Hello call, and the bus calls made by Listen,
// RequestName, and ReleaseName.
func (c *Client) call(ctx context.Context, m *MethodCall) (*MethodReturn, error) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil, clientErr("connection closed", nil)
	}
	c.mu.Unlock()

	replyCh := make(chan pendingReply, 1)
	_, err := c.socket.Send(OutgoingMessage{Call: m}, func(serial Serial) {
		m.Serial = serial
		c.mu.Lock()
		c.pending[serial] = replyCh
		c.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, m.Serial)
		c.mu.Unlock()
		return nil, ctx.Err()
	case reply := <-replyCh:
		switch {
		case reply.ClientErr != nil:
			return nil, reply.ClientErr
		case reply.MethodErr != nil:
			return nil, reply.MethodErr
		default:
			return reply.Return, nil
		}
	}
}

// Emit broadcasts a signal: a fire-and-forget send with no reply
// slot allocated.
func (c *Client) Emit(path ObjectPath, iface InterfaceName, member MemberName, args []Variant) error {
	s := &Signal{Path: path, Interface: iface, Member: member, Body: args}
	_, err := c.socket.Send(OutgoingMessage{Signal: s}, func(serial Serial) { s.Serial = serial })
	return err
}

// Listen registers handler to be invoked for every signal matching
// rule, and issues AddMatch to the daemon with rule's formatted
// filter string.
func (c *Client) Listen(ctx context.Context, rule MatchRule, handler func(*Signal)) error {
	c.mu.Lock()
	c.handlers = append(c.handlers, signalHandler{rule: rule, fn: handler})
	c.mu.Unlock()

	_, err := c.call(ctx, &MethodCall{
		Path:        busDaemonPath,
		Member:      MustMemberName("AddMatch"),
		Interface:   value.Just(busDaemonInterface),
		Destination: value.Just(busDaemonName),
		Body:        []Variant{NewVariantOf(NewAtom(AtomText(rule.FilterString())))},
	})
	return err
}

// Export registers methods under path, merging with any existing
// registration for the same path and interface at the member level.
func (c *Client) Export(path ObjectPath, methods []MethodDescriptor) {
	c.objects.export(path, methods)
}

// ExportSignals records signal declarations under path, for
// introspection only.
func (c *Client) ExportSignals(path ObjectPath, signals []SignalDescriptor) {
	c.objects.exportSignals(path, signals)
}

// NameRequest is a request to take ownership of a bus name. See
// [Client.RequestName] for detailed behavior.
type NameRequest struct {
	// Name is the bus name to request.
	Name BusName
	// ReplaceCurrent attempts to replace the current primary owner,
	// if one exists and allowed replacement.
	ReplaceCurrent bool
	// NoQueue causes RequestName to fail rather than join the backup
	// owner queue if primary ownership cannot be granted immediately.
	NoQueue bool
	// AllowReplacement allows another requestor using ReplaceCurrent
	// to take ownership away from this client.
	AllowReplacement bool
}

// RequestName asks the daemon to assign name to this client. It
// reports whether the client became the name's primary owner; by
// default, if the name already has an owner, the client is queued as
// a backup owner and RequestName returns (false, nil).
func (c *Client) RequestName(ctx context.Context, req NameRequest) (isPrimaryOwner bool, err error) {
	var flags uint32
	if req.AllowReplacement {
		flags |= 0x1
	}
	if req.ReplaceCurrent {
		flags |= 0x2
	}
	if req.NoQueue {
		flags |= 0x4
	}

	body := []Variant{
		NewVariantOf(NewAtom(AtomText(string(req.Name)))),
		NewVariantOf(NewAtom(AtomWord32(flags))),
	}
	reply, err := c.call(ctx, &MethodCall{
		Path:        busDaemonPath,
		Member:      MustMemberName("RequestName"),
		Interface:   value.Just(busDaemonInterface),
		Destination: value.Just(busDaemonName),
		Body:        body,
	})
	if err != nil {
		return false, err
	}
	code, ok := replyUint32(reply)
	if !ok {
		return false, clientErr("RequestName: malformed reply", nil)
	}
	switch code {
	case 1, 4: // became or already primary owner
		return true, nil
	case 2: // queued, not primary
		return false, nil
	case 3: // not available, NoQueue set
		return false, fmt.Errorf("dbus: name %q not available", req.Name)
	default:
		return false, fmt.Errorf("dbus: unknown response code %d to RequestName", code)
	}
}

// ReleaseName asks the daemon to release a bus name previously
// obtained with RequestName.
func (c *Client) ReleaseName(ctx context.Context, name BusName) error {
	_, err := c.call(ctx, &MethodCall{
		Path:        busDaemonPath,
		Member:      MustMemberName("ReleaseName"),
		Interface:   value.Just(busDaemonInterface),
		Destination: value.Just(busDaemonName),
		Body:        []Variant{NewVariantOf(NewAtom(AtomText(string(name))))},
	})
	return err
}

func replyUint32(reply *MethodReturn) (uint32, bool) {
	if len(reply.Body) != 1 {
		return 0, false
	}
	a, ok := reply.Body[0].Value.AsAtom()
	if !ok {
		return 0, false
	}
	return a.Word32()
}

// Disconnect cancels the receive loop, drains all pending calls
// with a ClientError, clears handlers and exported objects, and
// closes the socket.
func (c *Client) Disconnect() error {
	return c.teardown(clientErr("connection closed during call", nil))
}

// teardown performs the one-time disconnect transition. drainErr,
// if non-nil, is the error completed pending calls receive; nil
// means the caller is tearing down a connection that never finished
// attaching (no pending calls can exist yet).
func (c *Client) teardown(drainErr error) error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	pending := c.pending
	c.pending = map[Serial]chan pendingReply{}
	c.handlers = nil
	c.mu.Unlock()

	if drainErr != nil {
		for serial, ch := range pending {
			ch <- pendingReply{ClientErr: withSerial(drainErr, serial)}
		}
	}
	c.objects.clear()
	return c.socket.Close()
}

func withSerial(err error, serial Serial) error {
	if ce, ok := err.(ClientError); ok {
		ce.Serial = serial
		ce.HasSerial = true
		return ce
	}
	return err
}

// receiveLoop is the dispatcher's dedicated receive task: it pulls
// framed messages and hands each to its own goroutine so a slow
// user handler never blocks the reader.
func (c *Client) receiveLoop() {
	for {
		msg, err := c.socket.Receive()
		if err != nil {
			c.teardown(clientErr("connection closed during call", err))
			return
		}
		go c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg ReceivedMessage) {
	switch {
	case msg.Return != nil:
		c.completePending(msg.Return.ReplySerial, pendingReply{Return: msg.Return})
	case msg.Err != nil:
		c.completePending(msg.Err.ReplySerial, pendingReply{MethodErr: msg.Err})
	case msg.Signal != nil:
		c.dispatchSignal(msg.Signal)
	case msg.Call != nil:
		c.dispatchCall(msg.Call)
	}
}

func (c *Client) completePending(serial Serial, reply pendingReply) {
	c.mu.Lock()
	ch, ok := c.pending[serial]
	if ok {
		delete(c.pending, serial)
	}
	c.mu.Unlock()
	if ok {
		ch <- reply
	}
}

func (c *Client) dispatchSignal(s *Signal) {
	if _, ok := s.Sender.GetOK(); !ok {
		return
	}
	c.mu.Lock()
	handlers := make([]signalHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		if h.rule.Matches(s) {
			h.fn(s)
		}
	}
}

func (c *Client) dispatchCall(m *MethodCall) {
	iface, _ := m.Interface.GetOK()

	switch {
	case iface == introspectableInterface && m.Member == introspectMember:
		c.replyIntrospect(m)
		return
	case iface == peerInterface && m.Member == peerPingMember:
		c.replyReturn(m, nil)
		return
	}

	handler, ok := c.objects.lookup(m.Path, iface, m.Member)
	if !ok {
		c.replyErrorName(m, ErrUnknownMethod, fmt.Sprintf("no method %s.%s on object %s", iface, m.Member, m.Path))
		return
	}

	out, methodErr := c.invokeHandler(handler, m.Body)
	if methodErr != nil {
		methodErr.ReplySerial = m.Serial
		if dest, ok := m.Sender.GetOK(); ok {
			methodErr.Destination = value.Just(dest)
		}
		c.socket.Send(OutgoingMessage{Err: methodErr}, func(Serial) {})
		return
	}
	c.replyReturn(m, out)
}

// invokeHandler calls handler, converting a panic into an
// org.freedesktop.DBus.Error.Failed error carrying the panic value's
// text.
func (c *Client) invokeHandler(handler MethodHandler, body []Variant) (out []Variant, methodErr *MethodError) {
	defer func() {
		if r := recover(); r != nil {
			methodErr = Fail(ErrFailed, fmt.Sprintf("%v", r))
		}
	}()
	return handler(body)
}

func (c *Client) replyReturn(m *MethodCall, body []Variant) {
	ret := &MethodReturn{ReplySerial: m.Serial, Body: body}
	if dest, ok := m.Sender.GetOK(); ok {
		ret.Destination = value.Just(dest)
	}
	c.socket.Send(OutgoingMessage{Return: ret}, func(Serial) {})
}

func (c *Client) replyErrorName(m *MethodCall, name ErrorName, reason string) {
	methodErr := Fail(name, reason)
	methodErr.ReplySerial = m.Serial
	if dest, ok := m.Sender.GetOK(); ok {
		methodErr.Destination = value.Just(dest)
	}
	c.socket.Send(OutgoingMessage{Err: methodErr}, func(Serial) {})
}

func (c *Client) replyIntrospect(m *MethodCall) {
	desc, ok := c.objects.describe(m.Path)
	var xmlStr string
	if ok {
		xmlStr, ok = ToXML(m.Path, desc)
	}
	if !ok {
		c.replyErrorName(m, ErrUnknownMethod, fmt.Sprintf("no object at %s", m.Path))
		return
	}
	c.replyReturn(m, []Variant{NewVariantOf(NewAtom(AtomText(xmlStr)))})
}
