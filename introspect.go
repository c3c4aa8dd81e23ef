package dbus

import (
	"encoding/xml"
	"fmt"
)

// ObjectDescription describes one exported (or remote) object: its
// interfaces and any child object paths nested directly below it.
//
// A description received from a remote peer is only as trustworthy
// as that peer: it may not accurately reflect the object's actual
// API or structure.
type ObjectDescription struct {
	Interfaces map[InterfaceName]*InterfaceDescription
	Children   []string
}

// InterfaceDescription describes one interface's methods, signals,
// and properties.
type InterfaceDescription struct {
	Name       InterfaceName
	Methods    []*MethodDescription
	Signals    []*SignalDescription
	Properties []*PropertyDescription
}

// MethodDescription describes one method's argument shapes.
type MethodDescription struct {
	Name MemberName
	In   []ArgumentDescription
	Out  []ArgumentDescription
}

// SignalDescription describes one signal's argument shapes.
type SignalDescription struct {
	Name MemberName
	Args []ArgumentDescription
}

// PropertyDescription describes one property.
type PropertyDescription struct {
	Name     string
	Type     Signature
	Readable bool
	Writable bool
}

// ArgumentDescription describes a single method argument or signal
// field.
type ArgumentDescription struct {
	Name string // optional
	Type Signature
}

// ToXML renders o as a DBus introspection document, the
// introspection collaborator's to_xml(Object) contract. It reports
// false if o is nil, matching the case of introspecting an
// unregistered path.
func ToXML(path ObjectPath, o *ObjectDescription) (string, bool) {
	if o == nil {
		return "", false
	}

	doc := xmlNode{Name: string(path)}
	for _, iface := range o.Interfaces {
		xi := xmlInterface{Name: string(iface.Name)}
		for _, m := range iface.Methods {
			xm := xmlMethod{Name: string(m.Name)}
			for _, a := range m.In {
				xm.Args = append(xm.Args, xmlArg{Name: a.Name, Type: string(a.Type), Direction: "in"})
			}
			for _, a := range m.Out {
				xm.Args = append(xm.Args, xmlArg{Name: a.Name, Type: string(a.Type), Direction: "out"})
			}
			xi.Methods = append(xi.Methods, xm)
		}
		for _, s := range iface.Signals {
			xs := xmlSignal{Name: string(s.Name)}
			for _, a := range s.Args {
				xs.Args = append(xs.Args, xmlArg{Name: a.Name, Type: string(a.Type)})
			}
			xi.Signals = append(xi.Signals, xs)
		}
		for _, p := range iface.Properties {
			access := "read"
			switch {
			case p.Readable && p.Writable:
				access = "readwrite"
			case p.Writable:
				access = "write"
			}
			xi.Properties = append(xi.Properties, xmlProperty{Name: p.Name, Type: string(p.Type), Access: access})
		}
		doc.Interfaces = append(doc.Interfaces, xi)
	}
	for _, c := range o.Children {
		doc.Nodes = append(doc.Nodes, xmlChild{Name: c})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", false
	}
	return xml.Header + string(out), true
}

// ParseIntrospection decodes a DBus introspection document as
// received from a remote peer, the inverse of ToXML, used by client
// code that wants to inspect a service before calling it.
func ParseIntrospection(data []byte) (*ObjectDescription, error) {
	var doc xmlNode
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("dbus: parsing introspection XML: %w", err)
	}
	out := &ObjectDescription{Interfaces: map[InterfaceName]*InterfaceDescription{}}
	for _, xi := range doc.Interfaces {
		iface, ok := ParseInterfaceName(xi.Name)
		if !ok {
			continue
		}
		id := &InterfaceDescription{Name: iface}
		for _, xm := range xi.Methods {
			member, ok := ParseMemberName(xm.Name)
			if !ok {
				continue
			}
			md := &MethodDescription{Name: member}
			for _, a := range xm.Args {
				sig, err := ParseSignature(a.Type)
				if err != nil {
					continue
				}
				ad := ArgumentDescription{Name: a.Name, Type: sig}
				if a.Direction == "out" {
					md.Out = append(md.Out, ad)
				} else {
					md.In = append(md.In, ad)
				}
			}
			id.Methods = append(id.Methods, md)
		}
		for _, xs := range xi.Signals {
			member, ok := ParseMemberName(xs.Name)
			if !ok {
				continue
			}
			sd := &SignalDescription{Name: member}
			for _, a := range xs.Args {
				sig, err := ParseSignature(a.Type)
				if err != nil {
					continue
				}
				sd.Args = append(sd.Args, ArgumentDescription{Name: a.Name, Type: sig})
			}
			id.Signals = append(id.Signals, sd)
		}
		for _, xp := range xi.Properties {
			sig, err := ParseSignature(xp.Type)
			if err != nil {
				continue
			}
			pd := &PropertyDescription{Name: xp.Name, Type: sig}
			switch xp.Access {
			case "read":
				pd.Readable = true
			case "write":
				pd.Writable = true
			case "readwrite":
				pd.Readable, pd.Writable = true, true
			}
			id.Properties = append(id.Properties, pd)
		}
		out.Interfaces[iface] = id
	}
	for _, n := range doc.Nodes {
		out.Children = append(out.Children, n.Name)
	}
	return out, nil
}

// xmlNode and friends mirror the "org.freedesktop.DBus.Introspectable"
// XML schema; they exist purely as an encoding/xml marshalling
// target and are not exposed outside this file.
type xmlNode struct {
	XMLName    xml.Name       `xml:"node"`
	Name       string         `xml:"name,attr,omitempty"`
	Interfaces []xmlInterface `xml:"interface"`
	Nodes      []xmlChild     `xml:"node"`
}

type xmlChild struct {
	Name string `xml:"name,attr"`
}

type xmlInterface struct {
	Name       string        `xml:"name,attr"`
	Methods    []xmlMethod   `xml:"method"`
	Signals    []xmlSignal   `xml:"signal"`
	Properties []xmlProperty `xml:"property"`
}

type xmlMethod struct {
	Name string   `xml:"name,attr"`
	Args []xmlArg `xml:"arg"`
}

type xmlSignal struct {
	Name string   `xml:"name,attr"`
	Args []xmlArg `xml:"arg"`
}

type xmlProperty struct {
	Name   string `xml:"name,attr"`
	Type   string `xml:"type,attr"`
	Access string `xml:"access,attr"`
}

type xmlArg struct {
	Name      string `xml:"name,attr,omitempty"`
	Type      string `xml:"type,attr"`
	Direction string `xml:"direction,attr,omitempty"`
}
