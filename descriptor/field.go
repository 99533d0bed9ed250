package descriptor

import (
	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/annotation"
)

// FieldDescriptor describes one field of a message.
type FieldDescriptor struct {
	Name   string
	Number int32
	Label  Label

	// Kind is KindInvalid for a named type until the file is linked, when it
	// becomes KindMessage or KindEnum.
	Kind Kind

	// TypeName is the message or enum reference as written in the schema.
	TypeName string

	// Proto3Optional marks an explicit `optional` in a proto3 file.
	Proto3Optional bool

	Default       null.String
	JSONName      string
	Packed        null.Bool
	Deprecated    bool
	OneofIndex    int // index into the parent's Oneofs, -1 if none
	Documentation string
	Annotations   []*annotation.Annotation
	Options       []Option

	parent *Descriptor
	ref    int // arena index of the resolved message or enum, -1 if none
}

// NewField returns a field with no oneof membership.
func NewField(name string, number int32, label Label, kind Kind) *FieldDescriptor {
	return &FieldDescriptor{Name: name, Number: number, Label: label, Kind: kind, OneofIndex: -1, ref: -1}
}

// ContainingMessage returns the message that declares the field.
func (f *FieldDescriptor) ContainingMessage() *Descriptor { return f.parent }

// FullName returns the message name and the field name joined by a dot.
func (f *FieldDescriptor) FullName() string {
	if f.parent == nil {
		return f.Name
	}
	return f.parent.FullName + "." + f.Name
}

// ContainingOneof returns the oneof the field belongs to, or nil.
func (f *FieldDescriptor) ContainingOneof() *OneofDescriptor {
	if f.parent == nil || f.OneofIndex < 0 || f.OneofIndex >= len(f.parent.Oneofs) {
		return nil
	}
	return f.parent.Oneofs[f.OneofIndex]
}

func (f *FieldDescriptor) IsRepeated() bool { return f.Label == LabelRepeated }
func (f *FieldDescriptor) IsRequired() bool { return f.Label == LabelRequired }

// HasPresence reports whether an unset field can be told apart from one set
// to its zero value.
func (f *FieldDescriptor) HasPresence() bool {
	switch {
	case f.IsRepeated():
		return false
	case f.Kind == KindMessage || f.Kind == KindGroup:
		return true
	case f.parent != nil && f.parent.file != nil && f.parent.file.Syntax == Proto3:
		return f.Proto3Optional || f.ContainingOneof() != nil
	}
	return true
}

// IsPacked reports whether repeated values are written as one packed
// length-delimited record. Proto3 packs packable kinds unless disabled.
func (f *FieldDescriptor) IsPacked() bool {
	if !f.IsRepeated() || !f.Kind.IsPackable() {
		return false
	}
	if f.Packed.Valid {
		return f.Packed.Bool
	}
	return f.parent != nil && f.parent.file != nil && f.parent.file.Syntax == Proto3
}

// WireType returns the wire type of one encoded value of the field.
func (f *FieldDescriptor) WireType() protostream.WireType { return f.Kind.WireType() }

// IsResolved reports whether a message or enum reference has been linked.
func (f *FieldDescriptor) IsResolved() bool { return f.ref >= 0 }

// resolvedType follows the arena link.
func (f *FieldDescriptor) resolvedType() Type {
	if f.ref < 0 || f.parent == nil || f.parent.file == nil || f.parent.file.pool == nil {
		return nil
	}
	return f.parent.file.pool.typeAt(f.ref)
}

// Message returns the linked message type, or nil for other kinds.
func (f *FieldDescriptor) Message() *Descriptor {
	if f.Kind != KindMessage && f.Kind != KindGroup {
		return nil
	}
	d, _ := f.resolvedType().(*Descriptor)
	return d
}

// Enum returns the linked enum type, or nil for other kinds.
func (f *FieldDescriptor) Enum() *EnumDescriptor {
	if f.Kind != KindEnum {
		return nil
	}
	e, _ := f.resolvedType().(*EnumDescriptor)
	return e
}

// IsMap reports whether the field is a map<K,V>.
func (f *FieldDescriptor) IsMap() bool {
	if !f.IsRepeated() || f.Kind != KindMessage {
		return false
	}
	m := f.Message()
	return m != nil && m.IsMapEntry
}

// MapKey returns the key field of a map field's entry message.
func (f *FieldDescriptor) MapKey() *FieldDescriptor {
	if !f.IsMap() {
		return nil
	}
	return f.Message().FieldByNumber(1)
}

// MapValue returns the value field of a map field's entry message.
func (f *FieldDescriptor) MapValue() *FieldDescriptor {
	if !f.IsMap() {
		return nil
	}
	return f.Message().FieldByNumber(2)
}

// JSONFieldName returns the json_name option, or the lowerCamelCase form of
// the field name.
func (f *FieldDescriptor) JSONFieldName() string {
	if f.JSONName != "" {
		return f.JSONName
	}
	return JSONCamelCase(f.Name)
}

// JSONCamelCase converts a snake_case field name the way protoc does.
func JSONCamelCase(s string) string {
	b := make([]byte, 0, len(s))
	upper := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			upper = true
		case upper && c >= 'a' && c <= 'z':
			b = append(b, c-'a'+'A')
			upper = false
		default:
			b = append(b, c)
			upper = false
		}
	}
	return string(b)
}
