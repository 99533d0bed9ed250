package protostream

import (
	"errors"
	"fmt"
)

// Error classes. Every error produced by this module matches exactly one of
// them with errors.Is.
var (
	// ErrSchemaParse is the class of malformed, duplicate or unresolvable schema definitions.
	ErrSchemaParse = errors.New("protostream: schema parse error")

	// ErrWireFormat is the class of errors raised while decoding binary input.
	ErrWireFormat = errors.New("protostream: wire format error")

	// ErrRegistration is the class of marshaller and annotation configuration errors.
	ErrRegistration = errors.New("protostream: registration error")

	// ErrCompatibility is the class of schema evolution violations.
	ErrCompatibility = errors.New("protostream: compatibility error")
)

var (
	// ErrNilIO indicates that NewReader/NewWriter was called with an nil interface
	ErrNilIO = errors.New("protostream: NewReader/NewWriter called with a nil io.Reader/io.Writer")

	// ErrAlreadyBuffered indicates that NewReader/NewWriter was called with an already-buffered
	// reader/writer, which would lead to unpredictable behavior and performance issues.
	ErrAlreadyBuffered = errors.New("protostream: reader or writer is already buffered")

	// ErrSizeTooSmall indicates a size conflict with bufio
	ErrSizeTooSmall = errors.New("protostream: NewReaderSize with a size smaller than 16 conflict with bufio")

	// ErrWriteToNil indicates a WriteTo operation was attempted on a nil io.Writer.
	ErrWriteToNil = errors.New("protostream: WriteTo called with a nil io.Writer")

	// ErrInvalidWrite indicates that an io.Writer returned an invalid (negative) count from Write.
	ErrInvalidWrite = errors.New("protostream: writer returned invalid count from Write")

	// ErrMalformedVarint is returned when ten 7-bit groups are consumed without a terminator.
	ErrMalformedVarint = errors.New("protostream: malformed varint")

	// ErrTruncatedInput is returned when the input ends inside a value, or a declared
	// length exceeds the bytes left in the buffer or the enclosing message.
	ErrTruncatedInput = errors.New("protostream: truncated input")

	// ErrNestedMessageDepthExceeded is returned when nesting goes past the configured maximum.
	ErrNestedMessageDepthExceeded = errors.New("protostream: nested message depth exceeded")

	// ErrUnknownWireType is returned for wire types 6 and 7, or a wire type that
	// does not match the declared kind of a known field.
	ErrUnknownWireType = errors.New("protostream: unknown wire type")

	// ErrInvalidFieldNumber is returned for field numbers outside 1..2^29-1 or inside 19000..19999.
	ErrInvalidFieldNumber = errors.New("protostream: invalid field number")

	// ErrMismatchedEndGroup is returned when an end-group tag does not close the open group.
	ErrMismatchedEndGroup = errors.New("protostream: mismatched end group")

	// ErrInvalidLength is returned for negative or oversized length prefixes.
	ErrInvalidLength = errors.New("protostream: invalid length")
)

// WireFormatError describes a decode failure. Decoding is abandoned and no
// partially decoded value is returned alongside it.
type WireFormatError struct {
	Op     string // operation that failed, e.g. "read varint"
	Field  int32  // field number being decoded, 0 if unknown
	Offset int64  // byte offset in the input
	Err    error  // one of the sentinel errors above
}

func (e *WireFormatError) Error() string {
	if e.Field > 0 {
		return fmt.Sprintf("%s (field %d, offset %d): %v", e.Op, e.Field, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s (offset %d): %v", e.Op, e.Offset, e.Err)
}

func (e *WireFormatError) Unwrap() []error { return []error{e.Err, ErrWireFormat} }

// IsWireFormatError reports whether err was raised while decoding input.
func IsWireFormatError(err error) bool {
	return errors.Is(err, ErrWireFormat)
}
