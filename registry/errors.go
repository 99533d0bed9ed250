package registry

import (
	"errors"
	"fmt"

	"github.com/oy3o/protostream"
)

var (
	// ErrUnknownType is returned when a marshaller names a type missing from
	// the registered schemas.
	ErrUnknownType = errors.New("protostream: type not found in schema")

	// ErrDuplicateMarshaller is returned when a type name or Go type already
	// has a marshaller.
	ErrDuplicateMarshaller = errors.New("protostream: marshaller already registered")

	// ErrDuplicateTypeID is returned when two types claim the same @TypeId.
	ErrDuplicateTypeID = errors.New("protostream: duplicate type id")

	// ErrNoMarshaller is returned when a value or type name has no marshaller.
	ErrNoMarshaller = errors.New("protostream: no marshaller")

	// ErrKindMismatch is returned when a marshaller does not fit the kind of
	// its schema type, such as an enum marshaller for a message.
	ErrKindMismatch = errors.New("protostream: marshaller kind does not match schema type")

	// ErrInvalidValue is returned when a value cannot be encoded as the field
	// or wrapper it is written to.
	ErrInvalidValue = errors.New("protostream: invalid value")

	// ErrInvalidJSON is returned by FromCanonicalJSON for input that is not a
	// canonical projection.
	ErrInvalidJSON = errors.New("protostream: invalid canonical json")
)

// RegistrationError reports a marshaller or type that cannot be registered
// or dispatched to.
type RegistrationError struct {
	TypeName string
	Err      error
	Msg      string
}

func (e *RegistrationError) Error() string {
	if e.TypeName == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Msg)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, e.TypeName, e.Msg)
}

func (e *RegistrationError) Unwrap() []error { return []error{e.Err, protostream.ErrRegistration} }

func registrationErr(typeName string, err error, format string, args ...any) error {
	return &RegistrationError{TypeName: typeName, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// valueErr reports a value that the wire format cannot carry.
func valueErr(op string, field int32, format string, args ...any) error {
	return &protostream.WireFormatError{
		Op:    op,
		Field: field,
		Err:   fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...)),
	}
}

func jsonErr(format string, args ...any) error {
	return &protostream.WireFormatError{
		Op:  "parse json",
		Err: fmt.Errorf("%w: %s", ErrInvalidJSON, fmt.Sprintf(format, args...)),
	}
}
