package schema

import (
	"errors"
	"fmt"

	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream/descriptor"
)

// FileBuilder assembles a schema file in code. It produces the same model as
// Parse; errors are collected and reported by Build.
//
//	f, err := schema.NewFileBuilder("shop.proto").
//		Package("shop").
//		Message("Item").
//		Field("name", 1, "string").
//		Field("price", 2, "double").
//		Build()
type FileBuilder struct {
	file *descriptor.FileDescriptor
	doc  []string
	errs []error
}

// NewFileBuilder starts a proto3 file.
func NewFileBuilder(name string) *FileBuilder {
	return &FileBuilder{file: descriptor.NewFile(name, descriptor.Proto3, "")}
}

func (b *FileBuilder) fail(format string, args ...any) {
	b.errs = append(b.errs, &descriptor.SchemaError{
		File: b.file.Name,
		Err:  descriptor.ErrInvalidField,
		Msg:  fmt.Sprintf(format, args...),
	})
}

func (b *FileBuilder) Syntax(s descriptor.Syntax) *FileBuilder {
	b.file.Syntax = s
	return b
}

func (b *FileBuilder) Package(pkg string) *FileBuilder {
	b.file.Package = pkg
	return b
}

func (b *FileBuilder) Import(name string) *FileBuilder {
	b.file.PrivateImports = append(b.file.PrivateImports, name)
	return b
}

func (b *FileBuilder) PublicImport(name string) *FileBuilder {
	b.file.PublicImports = append(b.file.PublicImports, name)
	return b
}

// Option adds a file option. value is literal schema text, so strings must
// be quoted.
func (b *FileBuilder) Option(name, value string) *FileBuilder {
	b.file.Options = append(b.file.Options, descriptor.Option{Name: name, Value: value})
	return b
}

// Comment appends a line to the file's documentation.
func (b *FileBuilder) Comment(line string) *FileBuilder {
	b.doc = append(b.doc, line)
	b.file.Documentation = joinDoc(b.doc)
	return b
}

// Message adds a top-level message.
func (b *FileBuilder) Message(name string) *MessageBuilder {
	m := &MessageBuilder{file: b, d: &descriptor.Descriptor{Name: name}}
	b.file.Messages = append(b.file.Messages, m.d)
	return m
}

// Enum adds a top-level enum.
func (b *FileBuilder) Enum(name string) *EnumBuilder {
	e := &EnumBuilder{file: b, e: &descriptor.EnumDescriptor{Name: name}}
	b.file.Enums = append(b.file.Enums, e.e)
	return e
}

// Build checks the file and returns it. References to other types stay
// unresolved until the file is registered with a pool.
func (b *FileBuilder) Build(opts ...Option) (*descriptor.FileDescriptor, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	nameTypes(b.file.Package, b.file.Messages, b.file.Enums)
	o := newOptions(opts)
	if err := finish(b.file, o.annotations); err != nil {
		return nil, err
	}
	return b.file, nil
}

// nameTypes fills in the full names of every message and enum.
func nameTypes(scope string, msgs []*descriptor.Descriptor, enums []*descriptor.EnumDescriptor) {
	for _, e := range enums {
		e.FullName = qualify(scope, e.Name)
	}
	for _, m := range msgs {
		m.FullName = qualify(scope, m.Name)
		addSyntheticOneofs(m)
		nameTypes(m.FullName, m.NestedMessages, m.NestedEnums)
	}
}

// MessageBuilder adds the members of one message.
type MessageBuilder struct {
	file   *FileBuilder
	parent *MessageBuilder
	d      *descriptor.Descriptor
	doc    []string
}

// File returns the builder of the enclosing file.
func (m *MessageBuilder) File() *FileBuilder { return m.file }

// Parent returns the builder of the enclosing message, or nil.
func (m *MessageBuilder) Parent() *MessageBuilder { return m.parent }

func (m *MessageBuilder) Build(opts ...Option) (*descriptor.FileDescriptor, error) {
	return m.file.Build(opts...)
}

func (m *MessageBuilder) name() string {
	if m.parent != nil {
		return m.parent.name() + "." + m.d.Name
	}
	return qualify(m.file.file.Package, m.d.Name)
}

// Comment appends a line to the message documentation. Annotations such as
// @TypeId are read from it.
func (m *MessageBuilder) Comment(line string) *MessageBuilder {
	m.doc = append(m.doc, line)
	m.d.Documentation = joinDoc(m.doc)
	return m
}

// TypeID assigns the numeric type id used by the registry.
func (m *MessageBuilder) TypeID(id int64) *MessageBuilder {
	m.d.TypeID = null.IntFrom(id)
	return m
}

func (m *MessageBuilder) Option(name, value string) *MessageBuilder {
	m.d.Options = append(m.d.Options, descriptor.Option{Name: name, Value: value})
	return m
}

// Field adds a field. typ is a scalar keyword or a message or enum
// reference.
func (m *MessageBuilder) Field(name string, number int32, typ string) *FieldBuilder {
	return m.field(name, number, typ, -1)
}

func (m *MessageBuilder) field(name string, number int32, typ string, oneof int) *FieldBuilder {
	kind, ok := descriptor.ScalarKind(typ)
	ref := ""
	if !ok {
		kind, ref = descriptor.KindInvalid, typ
	}
	fd := descriptor.NewField(name, number, descriptor.LabelOptional, kind)
	fd.TypeName = ref
	fd.OneofIndex = oneof
	m.d.Fields = append(m.d.Fields, fd)
	return &FieldBuilder{msg: m, fd: fd}
}

// Map adds a map<key, value> field and its entry message.
func (m *MessageBuilder) Map(name string, number int32, key, value string) *FieldBuilder {
	keyKind, ok := descriptor.ScalarKind(key)
	if !ok || !keyKind.IsValidMapKey() {
		m.file.fail("map field %s.%s has invalid key type %s", m.name(), name, key)
	}
	valueKind, ok := descriptor.ScalarKind(value)
	valueType := ""
	if !ok {
		valueKind, valueType = descriptor.KindInvalid, value
	}
	fd := addMapField(m.d, name, number, keyKind, valueKind, valueType)
	return &FieldBuilder{msg: m, fd: fd}
}

// Oneof starts a oneof. Fields added through the returned builder belong to
// it.
func (m *MessageBuilder) Oneof(name string) *OneofBuilder {
	o := &descriptor.OneofDescriptor{Name: name}
	m.d.Oneofs = append(m.d.Oneofs, o)
	return &OneofBuilder{msg: m, o: o, index: len(m.d.Oneofs) - 1}
}

// Reserved reserves single field numbers.
func (m *MessageBuilder) Reserved(numbers ...int32) *MessageBuilder {
	for _, n := range numbers {
		if err := m.d.Reserved.AddNumber(m.name(), n); err != nil {
			m.file.errs = append(m.file.errs, err)
		}
	}
	return m
}

// ReservedRange reserves from..to inclusive.
func (m *MessageBuilder) ReservedRange(from, to int32) *MessageBuilder {
	if err := m.d.Reserved.AddRange(m.name(), from, to); err != nil {
		m.file.errs = append(m.file.errs, err)
	}
	return m
}

// ReservedName reserves field names.
func (m *MessageBuilder) ReservedName(names ...string) *MessageBuilder {
	for _, n := range names {
		if err := m.d.Reserved.AddName(m.name(), n); err != nil {
			m.file.errs = append(m.file.errs, err)
		}
	}
	return m
}

// Message adds a nested message.
func (m *MessageBuilder) Message(name string) *MessageBuilder {
	nested := &MessageBuilder{file: m.file, parent: m, d: &descriptor.Descriptor{Name: name}}
	m.d.NestedMessages = append(m.d.NestedMessages, nested.d)
	return nested
}

// Enum adds a nested enum.
func (m *MessageBuilder) Enum(name string) *EnumBuilder {
	e := &EnumBuilder{file: m.file, parent: m, e: &descriptor.EnumDescriptor{Name: name}}
	m.d.NestedEnums = append(m.d.NestedEnums, e.e)
	return e
}

// FieldBuilder sets the label and options of one field.
type FieldBuilder struct {
	msg *MessageBuilder
	fd  *descriptor.FieldDescriptor
	doc []string
}

func (f *FieldBuilder) Repeated() *FieldBuilder {
	f.fd.Label = descriptor.LabelRepeated
	return f
}

func (f *FieldBuilder) Required() *FieldBuilder {
	f.fd.Label = descriptor.LabelRequired
	return f
}

// Optional marks the field optional. In proto3 this gives the field
// explicit presence.
func (f *FieldBuilder) Optional() *FieldBuilder {
	f.fd.Label = descriptor.LabelOptional
	f.fd.Proto3Optional = f.msg.file.file.Syntax == descriptor.Proto3
	return f
}

// Default sets the default value, unquoted.
func (f *FieldBuilder) Default(v string) *FieldBuilder {
	f.fd.Default = null.StringFrom(v)
	return f
}

func (f *FieldBuilder) Packed(v bool) *FieldBuilder {
	f.fd.Packed = null.BoolFrom(v)
	return f
}

func (f *FieldBuilder) JSONName(name string) *FieldBuilder {
	f.fd.JSONName = name
	return f
}

func (f *FieldBuilder) Deprecated() *FieldBuilder {
	f.fd.Deprecated = true
	return f
}

func (f *FieldBuilder) Option(name, value string) *FieldBuilder {
	f.fd.Options = append(f.fd.Options, descriptor.Option{Name: name, Value: value})
	return f
}

func (f *FieldBuilder) Comment(line string) *FieldBuilder {
	f.doc = append(f.doc, line)
	f.fd.Documentation = joinDoc(f.doc)
	return f
}

// Field adds the next field to the same message.
func (f *FieldBuilder) Field(name string, number int32, typ string) *FieldBuilder {
	return f.msg.Field(name, number, typ)
}

// Map adds the next field to the same message as a map.
func (f *FieldBuilder) Map(name string, number int32, key, value string) *FieldBuilder {
	return f.msg.Map(name, number, key, value)
}

// Message returns the builder of the message that owns the field.
func (f *FieldBuilder) Message() *MessageBuilder { return f.msg }

func (f *FieldBuilder) Build(opts ...Option) (*descriptor.FileDescriptor, error) {
	return f.msg.Build(opts...)
}

// OneofBuilder adds the members of a oneof.
type OneofBuilder struct {
	msg   *MessageBuilder
	o     *descriptor.OneofDescriptor
	index int
}

func (o *OneofBuilder) Field(name string, number int32, typ string) *OneofBuilder {
	o.msg.field(name, number, typ, o.index)
	return o
}

func (o *OneofBuilder) Comment(line string) *OneofBuilder {
	if o.o.Documentation != "" {
		line = o.o.Documentation + "\n" + line
	}
	o.o.Documentation = line
	return o
}

// Message returns the builder of the message that owns the oneof.
func (o *OneofBuilder) Message() *MessageBuilder { return o.msg }

// EnumBuilder adds the values of an enum.
type EnumBuilder struct {
	file   *FileBuilder
	parent *MessageBuilder
	e      *descriptor.EnumDescriptor
	doc    []string
}

func (e *EnumBuilder) name() string {
	if e.parent != nil {
		return e.parent.name() + "." + e.e.Name
	}
	return qualify(e.file.file.Package, e.e.Name)
}

// Value adds a value. Any doc lines become its documentation.
func (e *EnumBuilder) Value(name string, number int32, doc ...string) *EnumBuilder {
	e.e.Values = append(e.e.Values, &descriptor.EnumValueDescriptor{Name: name, Number: number, Documentation: joinDoc(doc)})
	return e
}

func (e *EnumBuilder) AllowAlias() *EnumBuilder {
	e.e.AllowAlias = true
	return e
}

func (e *EnumBuilder) Comment(line string) *EnumBuilder {
	e.doc = append(e.doc, line)
	e.e.Documentation = joinDoc(e.doc)
	return e
}

func (e *EnumBuilder) TypeID(id int64) *EnumBuilder {
	e.e.TypeID = null.IntFrom(id)
	return e
}

func (e *EnumBuilder) Option(name, value string) *EnumBuilder {
	e.e.Options = append(e.e.Options, descriptor.Option{Name: name, Value: value})
	return e
}

func (e *EnumBuilder) Reserved(numbers ...int32) *EnumBuilder {
	for _, n := range numbers {
		if err := e.e.Reserved.AddNumber(e.name(), n); err != nil {
			e.file.errs = append(e.file.errs, err)
		}
	}
	return e
}

func (e *EnumBuilder) ReservedRange(from, to int32) *EnumBuilder {
	if err := e.e.Reserved.AddRange(e.name(), from, to); err != nil {
		e.file.errs = append(e.file.errs, err)
	}
	return e
}

func (e *EnumBuilder) ReservedName(names ...string) *EnumBuilder {
	for _, n := range names {
		if err := e.e.Reserved.AddName(e.name(), n); err != nil {
			e.file.errs = append(e.file.errs, err)
		}
	}
	return e
}

// File returns the builder of the enclosing file.
func (e *EnumBuilder) File() *FileBuilder { return e.file }

// Parent returns the builder of the enclosing message, or nil.
func (e *EnumBuilder) Parent() *MessageBuilder { return e.parent }

func (e *EnumBuilder) Build(opts ...Option) (*descriptor.FileDescriptor, error) {
	return e.file.Build(opts...)
}
