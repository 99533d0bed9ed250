package schema

import (
	"fmt"

	"github.com/oy3o/protostream"
)

// ParseError is a syntax or semantic error at a position in a schema file.
type ParseError struct {
	File string
	Line int
	Col  int
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("protostream: %s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, protostream.ErrSchemaParse}
	}
	return []error{protostream.ErrSchemaParse}
}
