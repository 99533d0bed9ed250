// Package compat snapshots registered schemas into a lock and checks a new
// snapshot against the previous one for changes that break readers or
// writers of the old wire format.
package compat

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/oy3o/protostream/descriptor"
)

// Lock is a schema snapshot. It is written as YAML.
type Lock struct {
	Definitions []Definition `yaml:"definitions"`
}

// Definition is the snapshot of one schema file.
type Definition struct {
	File     string    `yaml:"file"`
	Syntax   string    `yaml:"syntax"`
	Package  string    `yaml:"package,omitempty"`
	Messages []Message `yaml:"messages,omitempty"`
	Enums    []Enum    `yaml:"enums,omitempty"`
}

// Message is a message type with its fields in declaration order. Map entry
// messages are folded into the map fields that use them.
type Message struct {
	Name          string   `yaml:"name"`
	Fields        []Field  `yaml:"fields,omitempty"`
	ReservedIDs   []Range  `yaml:"reserved_ids,omitempty"`
	ReservedNames []string `yaml:"reserved_names,omitempty"`
}

// Field records what decides a field's wire form.
type Field struct {
	Name   string `yaml:"name"`
	Number int32  `yaml:"number"`
	Label  string `yaml:"label"`
	// Kind is a scalar keyword, "message", "enum", "group" or "map".
	Kind string `yaml:"kind"`
	// Type is the referenced type, or map<K,V> for maps.
	Type string `yaml:"type,omitempty"`
}

type Enum struct {
	Name          string      `yaml:"name"`
	Values        []EnumValue `yaml:"values,omitempty"`
	ReservedIDs   []Range     `yaml:"reserved_ids,omitempty"`
	ReservedNames []string    `yaml:"reserved_names,omitempty"`
}

type EnumValue struct {
	Name   string `yaml:"name"`
	Number int32  `yaml:"number"`
}

// Range is an inclusive range of reserved numbers.
type Range struct {
	From int32 `yaml:"from"`
	To   int32 `yaml:"to"`
}

// Snapshot captures files, which must be registered with a pool.
func Snapshot(files ...*descriptor.FileDescriptor) Lock {
	var l Lock
	for _, f := range files {
		def := Definition{File: f.Name, Syntax: f.Syntax.String(), Package: f.Package}
		f.Walk(func(t descriptor.Type) {
			switch t := t.(type) {
			case *descriptor.Descriptor:
				if !t.IsMapEntry {
					def.Messages = append(def.Messages, snapshotMessage(t))
				}
			case *descriptor.EnumDescriptor:
				def.Enums = append(def.Enums, snapshotEnum(t))
			}
		})
		l.Definitions = append(l.Definitions, def)
	}
	return l
}

// SnapshotPool captures every file of the pool in registration order.
func SnapshotPool(p *descriptor.Pool) Lock {
	return Snapshot(p.Files()...)
}

func snapshotMessage(d *descriptor.Descriptor) Message {
	m := Message{
		Name:          d.FullName,
		ReservedIDs:   ranges(&d.Reserved),
		ReservedNames: names(&d.Reserved),
	}
	for _, fd := range d.Fields {
		m.Fields = append(m.Fields, snapshotField(fd))
	}
	return m
}

func snapshotField(fd *descriptor.FieldDescriptor) Field {
	f := Field{Name: fd.Name, Number: fd.Number, Label: fd.Label.String(), Kind: fd.Kind.String()}
	switch {
	case fd.IsMap():
		f.Kind = "map"
		f.Type = fmt.Sprintf("map<%s,%s>", typeOf(fd.MapKey()), typeOf(fd.MapValue()))
	case !fd.Kind.IsScalar():
		f.Type = typeOf(fd)
	}
	return f
}

func typeOf(fd *descriptor.FieldDescriptor) string {
	switch {
	case fd.Message() != nil:
		return fd.Message().FullName
	case fd.Enum() != nil:
		return fd.Enum().FullName
	case fd.Kind.IsScalar():
		return fd.Kind.String()
	}
	return fd.TypeName
}

func snapshotEnum(e *descriptor.EnumDescriptor) Enum {
	out := Enum{
		Name:          e.FullName,
		ReservedIDs:   ranges(&e.Reserved),
		ReservedNames: names(&e.Reserved),
	}
	for _, v := range e.Values {
		out.Values = append(out.Values, EnumValue{Name: v.Name, Number: v.Number})
	}
	return out
}

func ranges(s *descriptor.ReservedSet) []Range {
	var out []Range
	for _, r := range s.Normalized() {
		out = append(out, Range{From: r.From, To: r.To})
	}
	return out
}

// ReadLock decodes a lock. Empty input is an empty lock.
func ReadLock(r io.Reader) (Lock, error) {
	var l Lock
	if err := yaml.NewDecoder(r).Decode(&l); err != nil && !errors.Is(err, io.EOF) {
		return Lock{}, fmt.Errorf("%w: %w", ErrInvalidLock, err)
	}
	return l, nil
}

// WriteLock encodes l as YAML.
func WriteLock(w io.Writer, l Lock) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return err
	}
	return enc.Close()
}

func names(s *descriptor.ReservedSet) []string {
	if len(s.Names) == 0 {
		return nil
	}
	return slices.Clone(s.Names)
}

func reservedNumber(rs []Range, n int32) bool {
	for _, r := range rs {
		if n >= r.From && n <= r.To {
			return true
		}
	}
	return false
}
