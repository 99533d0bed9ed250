package descriptor

import (
	"fmt"

	"github.com/oy3o/protostream"
)

// Kind is the declared type of a field. The values match
// google.protobuf.FieldDescriptorProto.Type.
type Kind int8

const (
	KindInvalid  Kind = 0
	KindDouble   Kind = 1
	KindFloat    Kind = 2
	KindInt64    Kind = 3
	KindUint64   Kind = 4
	KindInt32    Kind = 5
	KindFixed64  Kind = 6
	KindFixed32  Kind = 7
	KindBool     Kind = 8
	KindString   Kind = 9
	KindGroup    Kind = 10 // decode only
	KindMessage  Kind = 11
	KindBytes    Kind = 12
	KindUint32   Kind = 13
	KindEnum     Kind = 14
	KindSfixed32 Kind = 15
	KindSfixed64 Kind = 16
	KindSint32   Kind = 17
	KindSint64   Kind = 18
)

var kindNames = map[Kind]string{
	KindDouble:   "double",
	KindFloat:    "float",
	KindInt64:    "int64",
	KindUint64:   "uint64",
	KindInt32:    "int32",
	KindFixed64:  "fixed64",
	KindFixed32:  "fixed32",
	KindBool:     "bool",
	KindString:   "string",
	KindGroup:    "group",
	KindMessage:  "message",
	KindBytes:    "bytes",
	KindUint32:   "uint32",
	KindEnum:     "enum",
	KindSfixed32: "sfixed32",
	KindSfixed64: "sfixed64",
	KindSint32:   "sint32",
	KindSint64:   "sint64",
}

var scalarKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		if k.IsScalar() {
			m[name] = k
		}
	}
	return m
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int8(k))
}

// ScalarKind returns the kind of a scalar type keyword such as "sint32".
func ScalarKind(name string) (Kind, bool) {
	k, ok := scalarKinds[name]
	return k, ok
}

// IsScalar reports whether k is neither a message, a group nor an enum.
func (k Kind) IsScalar() bool {
	switch k {
	case KindInvalid, KindMessage, KindGroup, KindEnum:
		return false
	}
	_, ok := kindNames[k]
	return ok
}

// IsPackable reports whether repeated values of k may use packed encoding.
func (k Kind) IsPackable() bool {
	switch k {
	case KindString, KindBytes, KindMessage, KindGroup, KindInvalid:
		return false
	}
	_, ok := kindNames[k]
	return ok
}

// IsValidMapKey reports whether k may be the key type of a map field.
func (k Kind) IsValidMapKey() bool {
	switch k {
	case KindInt32, KindInt64, KindUint32, KindUint64, KindSint32, KindSint64,
		KindFixed32, KindFixed64, KindSfixed32, KindSfixed64, KindBool, KindString:
		return true
	}
	return false
}

// WireType returns the wire type used for a single, unpacked value of k.
func (k Kind) WireType() protostream.WireType {
	switch k {
	case KindDouble, KindFixed64, KindSfixed64:
		return protostream.Fixed64Type
	case KindFloat, KindFixed32, KindSfixed32:
		return protostream.Fixed32Type
	case KindString, KindBytes, KindMessage:
		return protostream.BytesType
	case KindGroup:
		return protostream.StartGroupType
	}
	return protostream.VarintType
}

// Label is the cardinality of a field. The values match
// google.protobuf.FieldDescriptorProto.Label.
type Label int8

const (
	LabelOptional Label = 1
	LabelRequired Label = 2
	LabelRepeated Label = 3
)

func (l Label) String() string {
	switch l {
	case LabelOptional:
		return "optional"
	case LabelRequired:
		return "required"
	case LabelRepeated:
		return "repeated"
	}
	return fmt.Sprintf("label(%d)", int8(l))
}

// Syntax is the schema language version of a file.
type Syntax int8

const (
	Proto2 Syntax = 2
	Proto3 Syntax = 3
)

func (s Syntax) String() string {
	switch s {
	case Proto2:
		return "proto2"
	case Proto3:
		return "proto3"
	}
	return fmt.Sprintf("syntax(%d)", int8(s))
}

// ParseSyntax maps a syntax string to its version. The empty string is proto2.
func ParseSyntax(s string) (Syntax, bool) {
	switch s {
	case "", "proto2":
		return Proto2, true
	case "proto3":
		return Proto3, true
	}
	return 0, false
}
