package compat

import (
	"fmt"
	"slices"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/descriptor"
)

// Check compares next against prev and returns every violation found.
// Types are matched by full name; types only one side knows are not
// compared.
func Check(prev, next Lock) []Violation {
	messages := make(map[string]located[Message])
	enums := make(map[string]located[Enum])
	for _, def := range next.Definitions {
		for _, m := range def.Messages {
			messages[m.Name] = located[Message]{def.File, m}
		}
		for _, e := range def.Enums {
			enums[e.Name] = located[Enum]{def.File, e}
		}
	}

	var out []Violation
	for _, def := range prev.Definitions {
		for _, om := range def.Messages {
			if nm, ok := messages[om.Name]; ok {
				out = checkMessage(out, om, nm.file, nm.v)
			}
		}
		for _, oe := range def.Enums {
			if ne, ok := enums[oe.Name]; ok {
				out = checkEnum(out, oe, ne.file, ne.v)
			}
		}
	}
	return out
}

// Compare is Check returning a *CompatibilityError when anything is
// violated.
func Compare(prev, next Lock) error {
	if vs := Check(prev, next); len(vs) > 0 {
		return &CompatibilityError{Violations: vs}
	}
	return nil
}

type located[T any] struct {
	file string
	v    T
}

func checkMessage(out []Violation, om Message, file string, nm Message) []Violation {
	report := func(rule Rule, f Field, format string, args ...any) {
		out = append(out, Violation{
			Rule:   rule,
			File:   file,
			Type:   nm.Name,
			Field:  f.Name,
			Number: f.Number,
			Msg:    fmt.Sprintf(format, args...),
		})
	}

	for _, of := range om.Fields {
		nf, ok := fieldByNumber(nm.Fields, of.Number)
		if !ok {
			if !reservedNumber(nm.ReservedIDs, of.Number) {
				report(FieldRemovedNotReserved, of, "field removed without reserving its number")
			}
			continue
		}
		switch {
		case !wireCompatible(of, nf) && nf.Name == of.Name:
			report(FieldKindChanged, nf, "%s changed to %s", describe(of), describe(nf))
		case !wireCompatible(of, nf):
			report(FieldNumberReused, nf, "number of %s %s reused for %s", describe(of), of.Name, describe(nf))
		case nf.Label == requiredLabel && of.Label != requiredLabel:
			report(RequiredFieldAdded, nf, "field became required")
		}
	}

	for _, nf := range nm.Fields {
		if _, ok := fieldByNumber(om.Fields, nf.Number); ok {
			continue
		}
		switch {
		case reservedNumber(om.ReservedIDs, nf.Number):
			report(ReservedFieldUsed, nf, "number %d is reserved", nf.Number)
		case slices.Contains(om.ReservedNames, nf.Name):
			report(ReservedFieldUsed, nf, "name %q is reserved", nf.Name)
		}
		if nf.Label == requiredLabel {
			report(RequiredFieldAdded, nf, "new required field cannot be read from old data")
		}
	}
	return out
}

func checkEnum(out []Violation, oe Enum, file string, ne Enum) []Violation {
	report := func(rule Rule, v EnumValue, format string, args ...any) {
		out = append(out, Violation{
			Rule:   rule,
			File:   file,
			Type:   ne.Name,
			Field:  v.Name,
			Number: v.Number,
			Msg:    fmt.Sprintf(format, args...),
		})
	}

	for _, ov := range oe.Values {
		if reservedNumber(ne.ReservedIDs, ov.Number) {
			continue
		}
		i := slices.IndexFunc(ne.Values, func(v EnumValue) bool { return v.Name == ov.Name })
		switch {
		case i >= 0 && ne.Values[i].Number != ov.Number:
			report(EnumValueNameReused, ov, "name moved to %d without reserving %d", ne.Values[i].Number, ov.Number)
		case i < 0 && !slices.ContainsFunc(ne.Values, func(v EnumValue) bool { return v.Number == ov.Number }):
			report(EnumValueRemovedNotReserved, ov, "value removed without reserving its number")
		}
	}
	return out
}

const requiredLabel = "required"

func fieldByNumber(fields []Field, n int32) (Field, bool) {
	i := slices.IndexFunc(fields, func(f Field) bool { return f.Number == n })
	if i < 0 {
		return Field{}, false
	}
	return fields[i], true
}

// wireCompatible reports whether data written for a can be read as b.
func wireCompatible(a, b Field) bool {
	return wireClass(a) == wireClass(b)
}

// wireClass groups fields whose values decode interchangeably. Varint
// integers, bools and enums share a class; zigzag integers do not join it.
// Messages, groups and maps only match the same referenced type.
func wireClass(f Field) string {
	if k, ok := descriptor.ScalarKind(f.Kind); ok {
		switch k {
		case descriptor.KindSint32, descriptor.KindSint64:
			return "zigzag"
		case descriptor.KindFloat, descriptor.KindDouble:
			return k.String()
		}
		return k.WireType().String()
	}
	if f.Kind == "enum" {
		return protostream.VarintType.String()
	}
	return f.Kind + " " + f.Type
}

func describe(f Field) string {
	if f.Type != "" {
		return f.Type
	}
	return f.Kind
}
