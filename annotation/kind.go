package annotation

import "fmt"

// Kind is the closed set of value types an annotation attribute may hold.
type Kind int8

const (
	KindInvalid Kind = iota
	KindIdentifier
	KindString
	KindChar
	KindBoolean
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindAnnotation
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindIdentifier: "identifier",
	KindString:     "string",
	KindChar:       "char",
	KindBoolean:    "boolean",
	KindInt:        "int",
	KindLong:       "long",
	KindFloat:      "float",
	KindDouble:     "double",
	KindAnnotation: "annotation",
}

func (k Kind) String() string {
	if k.Valid() || k == KindInvalid {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int8(k))
}

// Valid reports whether k is one of the defined attribute kinds.
func (k Kind) Valid() bool { return k >= KindIdentifier && k <= KindAnnotation }

// Target is a bit set of schema elements an annotation may be attached to.
type Target uint8

const (
	TargetFile Target = 1 << iota
	TargetMessage
	TargetEnum
	TargetEnumValue
	TargetField
	TargetOneof

	TargetType = TargetMessage | TargetEnum
	TargetAny  = TargetFile | TargetMessage | TargetEnum | TargetEnumValue | TargetField | TargetOneof
)

func (t Target) String() string {
	switch t {
	case TargetFile:
		return "file"
	case TargetMessage:
		return "message"
	case TargetEnum:
		return "enum"
	case TargetEnumValue:
		return "enum value"
	case TargetField:
		return "field"
	case TargetOneof:
		return "oneof"
	}
	return fmt.Sprintf("targets(%#x)", uint8(t))
}
