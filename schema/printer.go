package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oy3o/protostream/descriptor"
)

// Format renders f as canonical schema text. Parsing the result yields an
// equal model, whether f came from Parse or from a FileBuilder.
func Format(f *descriptor.FileDescriptor) string {
	p := &printer{file: f}
	p.doc(f.Documentation)
	p.linef("syntax = %s;", strconv.Quote(f.Syntax.String()))
	if f.Package != "" {
		p.blank()
		p.linef("package %s;", f.Package)
	}
	if len(f.PublicImports)+len(f.PrivateImports) > 0 {
		p.blank()
		for _, name := range f.PublicImports {
			p.linef("import public %s;", strconv.Quote(name))
		}
		for _, name := range f.PrivateImports {
			p.linef("import %s;", strconv.Quote(name))
		}
	}
	if len(f.Options) > 0 {
		p.blank()
		p.options(f.Options)
	}
	for _, e := range f.Enums {
		p.blank()
		p.enum(e)
	}
	for _, m := range f.Messages {
		p.blank()
		p.message(m)
	}
	return p.sb.String()
}

type printer struct {
	file   *descriptor.FileDescriptor
	sb     strings.Builder
	indent int
}

func (p *printer) line(s string) {
	p.sb.WriteString(strings.Repeat("  ", p.indent))
	p.sb.WriteString(s)
	p.sb.WriteByte('\n')
}

func (p *printer) linef(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

func (p *printer) blank() { p.sb.WriteByte('\n') }

func (p *printer) doc(doc string) {
	if doc == "" {
		return
	}
	for _, l := range strings.Split(doc, "\n") {
		if l == "" {
			p.line("//")
		} else {
			p.line("// " + l)
		}
	}
}

func (p *printer) options(opts []descriptor.Option) {
	for _, o := range opts {
		p.linef("option %s = %s;", o.Name, o.Value)
	}
}

func (p *printer) reserved(set *descriptor.ReservedSet) {
	for _, stmt := range set.Statements() {
		p.line(stmt)
	}
}

func (p *printer) enum(e *descriptor.EnumDescriptor) {
	p.doc(e.Documentation)
	p.linef("enum %s {", e.Name)
	p.indent++
	if e.AllowAlias {
		p.line("option allow_alias = true;")
	}
	p.options(e.Options)
	p.reserved(&e.Reserved)
	for _, v := range e.Values {
		p.doc(v.Documentation)
		p.linef("%s = %d%s;", v.Name, v.Number, optionList(v.Options))
	}
	p.indent--
	p.line("}")
}

func (p *printer) message(d *descriptor.Descriptor) {
	p.doc(d.Documentation)
	p.linef("message %s {", d.Name)
	p.body(d)
	p.line("}")
}

func (p *printer) body(d *descriptor.Descriptor) {
	p.indent++
	defer func() { p.indent-- }()

	p.options(d.Options)
	p.reserved(&d.Reserved)

	inline := make(map[*descriptor.Descriptor]bool)
	printed := make(map[int]bool)
	for _, fd := range d.Fields {
		if o := fd.OneofIndex; o >= 0 && o < len(d.Oneofs) && !d.Oneofs[o].Synthetic {
			if printed[o] {
				continue
			}
			printed[o] = true
			oneof := d.Oneofs[o]
			p.doc(oneof.Documentation)
			p.linef("oneof %s {", oneof.Name)
			p.indent++
			for _, member := range d.Fields {
				if member.OneofIndex == o {
					p.field(d, member, true, inline)
				}
			}
			p.indent--
			p.line("}")
			continue
		}
		p.field(d, fd, false, inline)
	}
	for _, e := range d.NestedEnums {
		p.enum(e)
	}
	for _, m := range d.NestedMessages {
		if !inline[m] {
			p.message(m)
		}
	}
}

func (p *printer) field(d *descriptor.Descriptor, fd *descriptor.FieldDescriptor, inOneof bool, inline map[*descriptor.Descriptor]bool) {
	p.doc(fd.Documentation)
	if entry := mapEntry(d, fd); entry != nil {
		inline[entry] = true
		key, value := entry.FieldByNumber(1), entry.FieldByNumber(2)
		if key == nil || value == nil {
			key, value = entry.Fields[0], entry.Fields[1]
		}
		p.linef("map<%s, %s> %s = %d%s;", typeOf(key), typeOf(value), fd.Name, fd.Number, p.fieldOptions(fd))
		return
	}

	label := ""
	switch {
	case inOneof:
	case fd.Label == descriptor.LabelRepeated:
		label = "repeated "
	case fd.Label == descriptor.LabelRequired:
		label = "required "
	case p.file.Syntax == descriptor.Proto2 || fd.Proto3Optional:
		label = "optional "
	}

	if fd.Kind == descriptor.KindGroup {
		if g := nestedByName(d, fd.TypeName); g != nil {
			inline[g] = true
			p.doc(g.Documentation)
			p.linef("%sgroup %s = %d%s {", label, g.Name, fd.Number, p.fieldOptions(fd))
			p.body(g)
			p.line("}")
			return
		}
	}
	p.linef("%s%s %s = %d%s;", label, typeOf(fd), fd.Name, fd.Number, p.fieldOptions(fd))
}

// mapEntry returns the synthesized entry message behind a map field.
func mapEntry(d *descriptor.Descriptor, fd *descriptor.FieldDescriptor) *descriptor.Descriptor {
	if !fd.IsRepeated() || (fd.Kind != descriptor.KindMessage && fd.Kind != descriptor.KindInvalid) {
		return nil
	}
	if m := fd.Message(); m != nil {
		if m.IsMapEntry && len(m.Fields) == 2 {
			return m
		}
		return nil
	}
	if m := nestedByName(d, fd.TypeName); m != nil && m.IsMapEntry && len(m.Fields) == 2 {
		return m
	}
	return nil
}

func nestedByName(d *descriptor.Descriptor, ref string) *descriptor.Descriptor {
	ref = strings.TrimPrefix(ref, ".")
	for _, m := range d.NestedMessages {
		if m.Name == ref || (m.FullName != "" && m.FullName == ref) {
			return m
		}
	}
	return nil
}

func typeOf(fd *descriptor.FieldDescriptor) string {
	if fd.TypeName != "" {
		return fd.TypeName
	}
	return fd.Kind.String()
}

func (p *printer) fieldOptions(fd *descriptor.FieldDescriptor) string {
	var opts []descriptor.Option
	if fd.Default.Valid {
		v := fd.Default.String
		if fd.Kind == descriptor.KindString || fd.Kind == descriptor.KindBytes {
			v = strconv.Quote(v)
		}
		opts = append(opts, descriptor.Option{Name: "default", Value: v})
	}
	if fd.Packed.Valid {
		opts = append(opts, descriptor.Option{Name: "packed", Value: strconv.FormatBool(fd.Packed.Bool)})
	}
	if fd.JSONName != "" {
		opts = append(opts, descriptor.Option{Name: "json_name", Value: strconv.Quote(fd.JSONName)})
	}
	if fd.Deprecated {
		opts = append(opts, descriptor.Option{Name: "deprecated", Value: "true"})
	}
	return optionList(append(opts, fd.Options...))
}

func optionList(opts []descriptor.Option) string {
	if len(opts) == 0 {
		return ""
	}
	parts := make([]string, len(opts))
	for i, o := range opts {
		parts[i] = o.Name + " = " + o.Value
	}
	return " [" + strings.Join(parts, ", ") + "]"
}
