// Command dbus is a small command-line client exercising the
// package's call, listen, introspect, and export operations against
// a running bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/value"
	"github.com/kr/pretty"
	"github.com/wirebus/dbus"
)

var globalArgs struct {
	Address string `flag:"address,default=/run/dbus/system_bus_socket,Unix socket address of the bus to connect to"`
}

func connect(ctx context.Context) (*dbus.Client, error) {
	return dbus.Connect(ctx, globalArgs.Address)
}

func main() {
	root := &command.C{
		Name:     "dbus",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "call",
				Usage: "call destination path interface member [arg...]",
				Help:  "Call a method and print its reply body.",
				Run:   runCall,
			},
			{
				Name:  "listen",
				Usage: "listen [interface] [member]",
				Help:  "Listen for signals matching an optional interface and member filter.",
				Run:   runListen,
			},
			{
				Name:  "introspect",
				Usage: "introspect destination path",
				Help:  "Introspect an object and print its interfaces.",
				Run:   runIntrospect,
			},
			{
				Name:  "export-ping",
				Usage: "export-ping [name]",
				Help: `Hold a connection open, answering Peer.Ping and Introspect.

If name is given, the connection requests ownership of that bus name.`,
				Run: runExportPing,
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func runCall(env *command.Env) error {
	if len(env.Args) < 4 {
		return env.Usagef("call requires destination, path, interface, and member arguments")
	}
	destination, path, iface, member := env.Args[0], env.Args[1], env.Args[2], env.Args[3]
	args := env.Args[4:]

	c, err := connect(env.Context())
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer c.Disconnect()

	dest, ok := dbus.ParseBusName(destination)
	if !ok {
		return fmt.Errorf("invalid destination bus name %q", destination)
	}
	p, ok := dbus.ParseObjectPath(path)
	if !ok {
		return fmt.Errorf("invalid object path %q", path)
	}
	in, ok := dbus.ParseInterfaceName(iface)
	if !ok {
		return fmt.Errorf("invalid interface name %q", iface)
	}
	m, ok := dbus.ParseMemberName(member)
	if !ok {
		return fmt.Errorf("invalid member name %q", member)
	}

	body := make([]dbus.Variant, len(args))
	for i, a := range args {
		body[i] = dbus.ToVariant(a)
	}

	ctx, cancel := context.WithTimeout(env.Context(), 30*time.Second)
	defer cancel()
	reply, err := c.Call(ctx, dest, p, in, m, body)
	if err != nil {
		return fmt.Errorf("calling %s.%s: %w", iface, member, err)
	}
	for _, v := range reply {
		fmt.Printf("%# v\n", pretty.Formatter(v))
	}
	return nil
}

func runListen(env *command.Env) error {
	c, err := connect(env.Context())
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer c.Disconnect()

	var rule dbus.MatchRule
	if len(env.Args) >= 1 && env.Args[0] != "" {
		in, ok := dbus.ParseInterfaceName(env.Args[0])
		if !ok {
			return fmt.Errorf("invalid interface name %q", env.Args[0])
		}
		rule.Interface = value.Just(in)
	}
	if len(env.Args) >= 2 && env.Args[1] != "" {
		m, ok := dbus.ParseMemberName(env.Args[1])
		if !ok {
			return fmt.Errorf("invalid member name %q", env.Args[1])
		}
		rule.Member = value.Just(m)
	}

	if err := c.Listen(env.Context(), rule, func(s *dbus.Signal) {
		sender, _ := s.Sender.GetOK()
		fmt.Printf("%s: %s.%s on %s\n  %# v\n\n", sender, s.Interface, s.Member, s.Path, pretty.Formatter(s.Body))
	}); err != nil {
		return fmt.Errorf("registering match rule: %w", err)
	}

	fmt.Println("Listening for signals...")
	<-env.Context().Done()
	return nil
}

func runIntrospect(env *command.Env) error {
	if len(env.Args) < 2 {
		return env.Usagef("introspect requires destination and path arguments")
	}
	destination, path := env.Args[0], env.Args[1]

	c, err := connect(env.Context())
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer c.Disconnect()

	dest, ok := dbus.ParseBusName(destination)
	if !ok {
		return fmt.Errorf("invalid destination bus name %q", destination)
	}
	p, ok := dbus.ParseObjectPath(path)
	if !ok {
		return fmt.Errorf("invalid object path %q", path)
	}

	ctx, cancel := context.WithTimeout(env.Context(), 30*time.Second)
	defer cancel()
	reply, err := c.Call(ctx, dest, p, dbus.MustInterfaceName("org.freedesktop.DBus.Introspectable"), dbus.MustMemberName("Introspect"), nil)
	if err != nil {
		return fmt.Errorf("introspecting %s: %w", path, err)
	}
	xmlStr, ok := dbus.FromVariant[string](reply[0])
	if !ok {
		return fmt.Errorf("introspect reply was not a string")
	}
	desc, err := dbus.ParseIntrospection([]byte(xmlStr))
	if err != nil {
		return fmt.Errorf("parsing introspection XML: %w", err)
	}

	for name, id := range desc.Interfaces {
		fmt.Println(name)
		for _, m := range id.Methods {
			fmt.Printf("  method %s(%s) (%s)\n", m.Name, argsString(m.In), argsString(m.Out))
		}
		for _, s := range id.Signals {
			fmt.Printf("  signal %s(%s)\n", s.Name, argsString(s.Args))
		}
		for _, p := range id.Properties {
			fmt.Printf("  property %s %s\n", p.Name, p.Type)
		}
	}
	if len(desc.Children) > 0 {
		fmt.Println("children:", strings.Join(desc.Children, ", "))
	}
	return nil
}

func argsString(args []dbus.ArgumentDescription) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Type.String()
	}
	return strings.Join(parts, ", ")
}

func runExportPing(env *command.Env) error {
	c, err := connect(env.Context())
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer c.Disconnect()

	if len(env.Args) >= 1 && env.Args[0] != "" {
		name, ok := dbus.ParseBusName(env.Args[0])
		if !ok {
			return fmt.Errorf("invalid bus name %q", env.Args[0])
		}
		isPrimary, err := c.RequestName(env.Context(), dbus.NameRequest{Name: name})
		if err != nil {
			return fmt.Errorf("requesting name %s: %w", name, err)
		}
		fmt.Printf("requested %s, primary owner: %v\n", name, isPrimary)
	}

	fmt.Println("local name:", c.LocalName())
	fmt.Println("answering Peer.Ping on every path and Introspectable.Introspect on /")
	<-env.Context().Done()
	return nil
}
