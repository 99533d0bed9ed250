package compat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oy3o/protostream"
)

// ErrInvalidLock is returned when a lock file cannot be decoded.
var ErrInvalidLock = errors.New("protostream: invalid lock file")

// Rule names a compatibility rule.
type Rule string

const (
	FieldKindChanged            Rule = "FieldKindChanged"
	RequiredFieldAdded          Rule = "RequiredFieldAdded"
	FieldNumberReused           Rule = "FieldNumberReused"
	FieldRemovedNotReserved     Rule = "FieldRemovedNotReserved"
	EnumValueNameReused         Rule = "EnumValueNameReused"
	ReservedFieldUsed           Rule = "ReservedFieldUsed"
	EnumValueRemovedNotReserved Rule = "EnumValueRemovedNotReserved"
)

// Violation is one incompatible change between two snapshots.
type Violation struct {
	Rule   Rule
	File   string
	Type   string
	Field  string // field or enum value name, empty when not applicable
	Number int32
	Msg    string
}

func (v Violation) String() string {
	if v.Field == "" {
		return fmt.Sprintf("%s: %s: %s: %s", v.Rule, v.File, v.Type, v.Msg)
	}
	return fmt.Sprintf("%s: %s: %s.%s (%d): %s", v.Rule, v.File, v.Type, v.Field, v.Number, v.Msg)
}

// CompatibilityError lists every violation a check found.
type CompatibilityError struct {
	Violations []Violation
}

func (e *CompatibilityError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "protostream: %d compatibility violation(s)", len(e.Violations))
	for _, v := range e.Violations {
		sb.WriteString("\n  ")
		sb.WriteString(v.String())
	}
	return sb.String()
}

func (e *CompatibilityError) Unwrap() error { return protostream.ErrCompatibility }
