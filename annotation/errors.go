package annotation

import (
	"errors"
	"fmt"

	"github.com/oy3o/protostream"
)

var (
	// ErrInvalidConfig is wrapped by every configuration validation failure.
	ErrInvalidConfig = errors.New("protostream: invalid annotation configuration")

	// ErrInvalidAnnotation is wrapped when an annotation in a doc comment does
	// not match its configuration.
	ErrInvalidAnnotation = errors.New("protostream: invalid annotation")

	// ErrSyntax is wrapped when a doc comment annotation cannot be parsed.
	ErrSyntax = errors.New("protostream: malformed annotation")
)

// ConfigError reports a configuration mistake found by ConfigBuilder.Build.
// It is a registration error.
type ConfigError struct {
	Annotation string
	Attribute  string
	Msg        string
}

func (e *ConfigError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("%v: @%s.%s: %s", ErrInvalidConfig, e.Annotation, e.Attribute, e.Msg)
	}
	return fmt.Sprintf("%v: @%s: %s", ErrInvalidConfig, e.Annotation, e.Msg)
}

func (e *ConfigError) Unwrap() []error { return []error{ErrInvalidConfig, protostream.ErrRegistration} }

// UsageError reports an annotation that violates its configuration, or
// cannot be parsed. It is a schema parse error.
type UsageError struct {
	Annotation string
	Offset     int // byte offset in the doc comment, -1 when not known
	Err        error
	Msg        string
}

func (e *UsageError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%v: @%s at offset %d: %s", e.Err, e.Annotation, e.Offset, e.Msg)
	}
	return fmt.Sprintf("%v: @%s: %s", e.Err, e.Annotation, e.Msg)
}

func (e *UsageError) Unwrap() []error { return []error{e.Err, protostream.ErrSchemaParse} }

func configErr(ann, attr, format string, args ...any) error {
	return &ConfigError{Annotation: ann, Attribute: attr, Msg: fmt.Sprintf(format, args...)}
}

func usageErr(ann string, format string, args ...any) error {
	return &UsageError{Annotation: ann, Offset: -1, Err: ErrInvalidAnnotation, Msg: fmt.Sprintf(format, args...)}
}
