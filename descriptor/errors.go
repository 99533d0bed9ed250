package descriptor

import (
	"errors"
	"fmt"

	"github.com/oy3o/protostream"
)

var (
	ErrDuplicateDefinition = errors.New("duplicate definition")
	ErrDuplicateFile       = errors.New("duplicate file")
	ErrUnresolvedImport    = errors.New("unresolved import")
	ErrUnresolvedType      = errors.New("unresolved type")
	ErrDuplicateReserved   = errors.New("duplicate reserved")
	ErrInvalidReserved     = errors.New("invalid reserved range")
	ErrInvalidField        = errors.New("invalid field")
)

// SchemaError is a linking or validation failure of a schema batch.
// It matches protostream.ErrSchemaParse.
type SchemaError struct {
	File string
	Err  error // one of the sentinels above
	Msg  string
}

func (e *SchemaError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("protostream: %s: %s", e.File, e.Msg)
	}
	return "protostream: " + e.Msg
}

func (e *SchemaError) Unwrap() []error { return []error{e.Err, protostream.ErrSchemaParse} }

func schemaErr(file string, kind error, format string, args ...any) error {
	return &SchemaError{File: file, Err: kind, Msg: fmt.Sprintf(format, args...)}
}
