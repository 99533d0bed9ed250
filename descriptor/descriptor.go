// Package descriptor holds the linked, in-memory form of parsed schemas:
// files, messages, enums and fields, the pool that owns them, and the
// namespaces used to resolve type references between files.
package descriptor

import (
	"strings"

	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream/annotation"
)

// Option is a `option name = value;` statement, kept as literal text.
type Option struct {
	Name  string
	Value string
}

// Type is a named message or enum.
type Type interface {
	// TypeName returns the fully qualified name, without a leading dot.
	TypeName() string
	// File returns the file that declares the type.
	File() *FileDescriptor
	// ID returns the numeric type id assigned with @TypeId, if any.
	ID() null.Int

	arenaIndex() int
	setArenaIndex(int)
}

// FileDescriptor is one parsed schema file. It owns every descriptor declared
// in it.
type FileDescriptor struct {
	Name           string
	Syntax         Syntax
	Package        string
	Messages       []*Descriptor
	Enums          []*EnumDescriptor
	PublicImports  []string
	PrivateImports []string
	Options        []Option
	Documentation  string
	Annotations    []*annotation.Annotation

	pool     *Pool
	resolved bool
	ns       *FileNamespace
}

// NewFile returns an empty file descriptor.
func NewFile(name string, syntax Syntax, pkg string) *FileDescriptor {
	return &FileDescriptor{Name: name, Syntax: syntax, Package: pkg}
}

// IsResolved reports whether every import in the file's transitive closure
// was found.
func (f *FileDescriptor) IsResolved() bool { return f.resolved }

// Pool returns the pool the file was registered with, or nil.
func (f *FileDescriptor) Pool() *Pool { return f.pool }

// Namespace returns the file's namespace. It is nil until the file has been
// registered with a pool.
func (f *FileDescriptor) Namespace() *FileNamespace { return f.ns }

// Imports returns public then private imports.
func (f *FileDescriptor) Imports() []string {
	out := make([]string, 0, len(f.PublicImports)+len(f.PrivateImports))
	out = append(out, f.PublicImports...)
	return append(out, f.PrivateImports...)
}

// Option returns the value of a file option.
func (f *FileDescriptor) Option(name string) (string, bool) {
	return findOption(f.Options, name)
}

// Walk calls fn for every message and enum of the file, outer types first.
func (f *FileDescriptor) Walk(fn func(Type)) {
	for _, e := range f.Enums {
		fn(e)
	}
	for _, m := range f.Messages {
		m.walk(fn)
	}
}

// Descriptor describes a message type.
type Descriptor struct {
	Name           string
	FullName       string
	Fields         []*FieldDescriptor
	Oneofs         []*OneofDescriptor
	NestedMessages []*Descriptor
	NestedEnums    []*EnumDescriptor
	Reserved       ReservedSet
	TypeID         null.Int
	Documentation  string
	Annotations    []*annotation.Annotation
	Options        []Option

	// IsMapEntry marks the synthesized key/value message of a map field.
	IsMapEntry bool

	file     *FileDescriptor
	parent   *Descriptor
	index    int
	byNumber map[int32]*FieldDescriptor
	byName   map[string]*FieldDescriptor
}

func (d *Descriptor) TypeName() string      { return d.FullName }
func (d *Descriptor) File() *FileDescriptor { return d.file }
func (d *Descriptor) ID() null.Int          { return d.TypeID }
func (d *Descriptor) Parent() *Descriptor   { return d.parent }
func (d *Descriptor) arenaIndex() int       { return d.index }
func (d *Descriptor) setArenaIndex(i int)   { d.index = i }
func (d *Descriptor) String() string        { return d.FullName }
func (d *Descriptor) Syntax() Syntax        { return d.file.Syntax }

// Option returns the value of a message option.
func (d *Descriptor) Option(name string) (string, bool) {
	return findOption(d.Options, name)
}

// FieldByNumber returns the field with the given number.
func (d *Descriptor) FieldByNumber(n int32) *FieldDescriptor {
	if d.byNumber != nil {
		return d.byNumber[n]
	}
	for _, f := range d.Fields {
		if f.Number == n {
			return f
		}
	}
	return nil
}

// FieldByName returns the field with the given name.
func (d *Descriptor) FieldByName(name string) *FieldDescriptor {
	if d.byName != nil {
		return d.byName[name]
	}
	for _, f := range d.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// NestedMessage returns a directly nested message by simple name.
func (d *Descriptor) NestedMessage(name string) *Descriptor {
	for _, m := range d.NestedMessages {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (d *Descriptor) walk(fn func(Type)) {
	fn(d)
	for _, e := range d.NestedEnums {
		fn(e)
	}
	for _, m := range d.NestedMessages {
		m.walk(fn)
	}
}

// link sets back references and names below d and builds the field indexes.
func (d *Descriptor) link(f *FileDescriptor, parent *Descriptor, scope string) {
	d.file, d.parent = f, parent
	if d.FullName == "" {
		d.FullName = qualify(scope, d.Name)
	}
	d.byNumber = make(map[int32]*FieldDescriptor, len(d.Fields))
	d.byName = make(map[string]*FieldDescriptor, len(d.Fields))
	for _, fd := range d.Fields {
		fd.parent = d
		fd.ref = -1
		d.byNumber[fd.Number] = fd
		d.byName[fd.Name] = fd
	}
	for i, o := range d.Oneofs {
		o.parent = d
		o.Fields = o.Fields[:0]
		for _, fd := range d.Fields {
			if fd.OneofIndex == i {
				o.Fields = append(o.Fields, fd)
			}
		}
	}
	for _, e := range d.NestedEnums {
		e.link(f, d, d.FullName)
	}
	for _, m := range d.NestedMessages {
		m.link(f, d, d.FullName)
	}
}

// OneofDescriptor describes a oneof group of fields.
type OneofDescriptor struct {
	Name          string
	Documentation string

	// Synthetic marks the oneof generated for a proto3 optional field.
	Synthetic bool

	// Fields lists the members in declaration order. It is filled in when
	// the file is registered.
	Fields []*FieldDescriptor

	parent *Descriptor
}

func (o *OneofDescriptor) Parent() *Descriptor { return o.parent }

// EnumDescriptor describes an enum type.
type EnumDescriptor struct {
	Name          string
	FullName      string
	Values        []*EnumValueDescriptor
	AllowAlias    bool
	Reserved      ReservedSet
	TypeID        null.Int
	Documentation string
	Annotations   []*annotation.Annotation
	Options       []Option

	file   *FileDescriptor
	parent *Descriptor
	index  int
}

func (e *EnumDescriptor) TypeName() string      { return e.FullName }
func (e *EnumDescriptor) File() *FileDescriptor { return e.file }
func (e *EnumDescriptor) ID() null.Int          { return e.TypeID }
func (e *EnumDescriptor) Parent() *Descriptor   { return e.parent }
func (e *EnumDescriptor) arenaIndex() int       { return e.index }
func (e *EnumDescriptor) setArenaIndex(i int)   { e.index = i }
func (e *EnumDescriptor) String() string        { return e.FullName }

// ValueByNumber returns the first value declared with number n.
func (e *EnumDescriptor) ValueByNumber(n int32) *EnumValueDescriptor {
	for _, v := range e.Values {
		if v.Number == n {
			return v
		}
	}
	return nil
}

// ValueByName returns the value with the given name.
func (e *EnumDescriptor) ValueByName(name string) *EnumValueDescriptor {
	for _, v := range e.Values {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Default returns the first declared value, which is the enum's default.
func (e *EnumDescriptor) Default() *EnumValueDescriptor {
	if len(e.Values) == 0 {
		return nil
	}
	return e.Values[0]
}

func (e *EnumDescriptor) link(f *FileDescriptor, parent *Descriptor, scope string) {
	e.file, e.parent = f, parent
	if e.FullName == "" {
		e.FullName = qualify(scope, e.Name)
	}
	for _, v := range e.Values {
		v.parent = e
	}
}

// EnumValueDescriptor is one named value of an enum.
type EnumValueDescriptor struct {
	Name          string
	Number        int32
	Documentation string
	Annotations   []*annotation.Annotation
	Options       []Option

	parent *EnumDescriptor
}

func (v *EnumValueDescriptor) Parent() *EnumDescriptor { return v.parent }

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

func findOption(opts []Option, name string) (string, bool) {
	for _, o := range opts {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}

// parentScope strips the last component of a dotted name.
func parentScope(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}
