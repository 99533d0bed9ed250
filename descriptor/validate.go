package descriptor

import (
	"github.com/oy3o/protostream"
)

// Validate checks the parts of a file that do not depend on other files:
// field numbers and names, reserved declarations, oneof membership, enum
// values and the proto3 restrictions.
func Validate(f *FileDescriptor) error {
	if _, ok := ParseSyntax(f.Syntax.String()); !ok {
		return schemaErr(f.Name, ErrInvalidField, "unknown syntax %s", f.Syntax)
	}
	for _, e := range f.Enums {
		if err := validateEnum(f, qualify(f.Package, e.Name), e); err != nil {
			return err
		}
	}
	for _, m := range f.Messages {
		if err := validateMessage(f, qualify(f.Package, m.Name), m); err != nil {
			return err
		}
	}
	return nil
}

func validateMessage(f *FileDescriptor, name string, d *Descriptor) error {
	numbers := make(map[int32]string, len(d.Fields))
	names := make(map[string]bool, len(d.Fields))
	for _, fd := range d.Fields {
		switch {
		case !protostream.ValidFieldNumber(fd.Number):
			return schemaErr(f.Name, ErrInvalidField, "field %s.%s has invalid number %d", name, fd.Name, fd.Number)
		case numbers[fd.Number] != "":
			return schemaErr(f.Name, ErrInvalidField, "field number %d of %s is used by both %s and %s", fd.Number, name, numbers[fd.Number], fd.Name)
		case names[fd.Name]:
			return schemaErr(f.Name, ErrInvalidField, "field %s is declared twice in %s", fd.Name, name)
		case d.Reserved.ContainsNumber(fd.Number):
			return schemaErr(f.Name, ErrInvalidField, "field %s.%s uses reserved number %d", name, fd.Name, fd.Number)
		case d.Reserved.ContainsName(fd.Name):
			return schemaErr(f.Name, ErrInvalidField, "field %s.%s uses a reserved name", name, fd.Name)
		case fd.OneofIndex >= len(d.Oneofs):
			return schemaErr(f.Name, ErrInvalidField, "field %s.%s refers to missing oneof %d", name, fd.Name, fd.OneofIndex)
		case fd.OneofIndex >= 0 && fd.Label != LabelOptional:
			return schemaErr(f.Name, ErrInvalidField, "oneof field %s.%s cannot be %s", name, fd.Name, fd.Label)
		case fd.Label == LabelRequired && f.Syntax == Proto3:
			return schemaErr(f.Name, ErrInvalidField, "required field %s.%s is not allowed in proto3", name, fd.Name)
		case fd.Default.Valid && f.Syntax == Proto3:
			return schemaErr(f.Name, ErrInvalidField, "default value of %s.%s is not allowed in proto3", name, fd.Name)
		case fd.Default.Valid && fd.IsRepeated():
			return schemaErr(f.Name, ErrInvalidField, "repeated field %s.%s cannot have a default", name, fd.Name)
		case fd.Packed.Valid && fd.Packed.Bool && !(fd.IsRepeated() && (fd.Kind.IsPackable() || fd.Kind == KindInvalid)):
			return schemaErr(f.Name, ErrInvalidField, "field %s.%s cannot be packed", name, fd.Name)
		}
		numbers[fd.Number] = fd.Name
		names[fd.Name] = true
	}
	for _, e := range d.NestedEnums {
		if err := validateEnum(f, qualify(name, e.Name), e); err != nil {
			return err
		}
	}
	for _, m := range d.NestedMessages {
		if err := validateMessage(f, qualify(name, m.Name), m); err != nil {
			return err
		}
	}
	return nil
}

func validateEnum(f *FileDescriptor, name string, e *EnumDescriptor) error {
	if len(e.Values) == 0 {
		return schemaErr(f.Name, ErrInvalidField, "enum %s has no values", name)
	}
	if f.Syntax == Proto3 && e.Values[0].Number != 0 {
		return schemaErr(f.Name, ErrInvalidField, "the first value of proto3 enum %s must be zero", name)
	}
	numbers := make(map[int32]string, len(e.Values))
	names := make(map[string]bool, len(e.Values))
	aliased := false
	for _, v := range e.Values {
		if names[v.Name] {
			return schemaErr(f.Name, ErrInvalidField, "enum value %s is declared twice in %s", v.Name, name)
		}
		if prev, dup := numbers[v.Number]; dup {
			if !e.AllowAlias {
				return schemaErr(f.Name, ErrInvalidField, "enum values %s and %s of %s share number %d without allow_alias", prev, v.Name, name, v.Number)
			}
			aliased = true
		}
		if e.Reserved.ContainsNumber(v.Number) {
			return schemaErr(f.Name, ErrInvalidField, "enum value %s.%s uses reserved number %d", name, v.Name, v.Number)
		}
		if e.Reserved.ContainsName(v.Name) {
			return schemaErr(f.Name, ErrInvalidField, "enum value %s.%s uses a reserved name", name, v.Name)
		}
		numbers[v.Number] = v.Name
		names[v.Name] = true
	}
	if e.AllowAlias && !aliased {
		return schemaErr(f.Name, ErrInvalidField, "enum %s sets allow_alias but has no aliases", name)
	}
	return nil
}
