package schema

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/descriptor"
)

// Parse parses one schema file. References to other types are left
// unresolved; hand the result to a descriptor.Pool, or use a Resolver, to
// link it.
func Parse(fileName, src string, opts ...Option) (*descriptor.FileDescriptor, error) {
	o := newOptions(opts)
	p := &parser{lex: newLexer(fileName, src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	f, err := p.parseFile()
	if err != nil {
		o.logger.Debug().Err(err).Str("file", fileName).Msg("schema parse failed")
		return nil, err
	}
	if err := finish(f, o.annotations); err != nil {
		return nil, err
	}
	o.logger.Debug().Str("file", fileName).Int("messages", len(f.Messages)).Int("enums", len(f.Enums)).Msg("schema parsed")
	return f, nil
}

type parser struct {
	lex    *lexer
	tok    token
	peeked *token
	file   *descriptor.FileDescriptor
}

func (p *parser) advance() error {
	if p.peeked != nil {
		p.tok, p.peeked = *p.peeked, nil
		return nil
	}
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) peek() (token, error) {
	if p.peeked == nil {
		tok, err := p.lex.next()
		if err != nil {
			return tok, err
		}
		p.peeked = &tok
	}
	return *p.peeked, nil
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return p.lex.errorf(tok.line, tok.col, format, args...)
}

// wrap attaches the position of tok to a model error.
func (p *parser) wrap(tok token, err error) error {
	msg := err.Error()
	var se *descriptor.SchemaError
	if errors.As(err, &se) {
		msg = se.Msg
	}
	return &ParseError{File: p.lex.file, Line: tok.line, Col: tok.col, Msg: msg, Err: err}
}

func (p *parser) is(sym string) bool {
	return (p.tok.kind == tokSymbol || p.tok.kind == tokIdent) && p.tok.text == sym
}

func (p *parser) expect(sym string) error {
	if !p.is(sym) {
		return p.errorf(p.tok, "expected %q, found %s", sym, p.tok)
	}
	return p.advance()
}

func (p *parser) ident() (token, error) {
	tok := p.tok
	if tok.kind != tokIdent {
		return tok, p.errorf(tok, "expected identifier, found %s", tok)
	}
	return tok, p.advance()
}

// fullIdent reads a dotted name. A leading dot is kept when allowed.
func (p *parser) fullIdent(leadingDot bool) (string, error) {
	var sb strings.Builder
	if leadingDot && p.is(".") {
		sb.WriteByte('.')
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	for {
		tok, err := p.ident()
		if err != nil {
			return "", err
		}
		sb.WriteString(tok.text)
		if !p.is(".") {
			return sb.String(), nil
		}
		sb.WriteByte('.')
		if err := p.advance(); err != nil {
			return "", err
		}
	}
}

func (p *parser) stringLit() (string, error) {
	if p.tok.kind != tokString {
		return "", p.errorf(p.tok, "expected string, found %s", p.tok)
	}
	var sb strings.Builder
	for p.tok.kind == tokString {
		sb.WriteString(p.tok.text)
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// intLit reads an optionally signed integer.
func (p *parser) intLit(min, max int64) (int64, error) {
	tok := p.tok
	neg := false
	if p.is("-") || p.is("+") {
		neg = p.is("-")
		if err := p.advance(); err != nil {
			return 0, err
		}
	}
	if p.tok.kind != tokInt {
		return 0, p.errorf(p.tok, "expected integer, found %s", p.tok)
	}
	u, err := strconv.ParseUint(p.tok.text, 0, 64)
	if err != nil || u > math.MaxInt64 {
		return 0, p.errorf(p.tok, "integer %s out of range", p.tok.text)
	}
	v := int64(u)
	if neg {
		v = -v
	}
	if v < min || v > max {
		return 0, p.errorf(tok, "integer %d out of range", v)
	}
	return v, p.advance()
}

// constant reads an option value. It returns the value and its source form:
// strings come back unescaped and quoted respectively.
func (p *parser) constant() (string, string, error) {
	switch p.tok.kind {
	case tokString:
		s, err := p.stringLit()
		return s, strconv.Quote(s), err
	case tokIdent:
		s, err := p.fullIdent(false)
		return s, s, err
	case tokInt, tokFloat:
		s := p.tok.text
		return s, s, p.advance()
	}
	switch {
	case p.is("-") || p.is("+"):
		sign := p.tok.text
		if err := p.advance(); err != nil {
			return "", "", err
		}
		if p.tok.kind != tokInt && p.tok.kind != tokFloat && p.tok.kind != tokIdent {
			return "", "", p.errorf(p.tok, "expected number after %s", sign)
		}
		s := p.tok.text
		if sign == "-" {
			s = "-" + s
		}
		return s, s, p.advance()
	case p.is("{"):
		raw, err := p.aggregate()
		return raw, raw, err
	}
	return "", "", p.errorf(p.tok, "expected constant, found %s", p.tok)
}

// aggregate reads a brace-delimited message literal as text.
func (p *parser) aggregate() (string, error) {
	var parts []string
	depth := 0
	for {
		if p.tok.kind == tokEOF {
			return "", p.errorf(p.tok, "unterminated aggregate value")
		}
		switch {
		case p.is("{"):
			depth++
		case p.is("}"):
			depth--
		}
		if p.tok.kind == tokString {
			parts = append(parts, strconv.Quote(p.tok.text))
		} else {
			parts = append(parts, p.tok.text)
		}
		if err := p.advance(); err != nil {
			return "", err
		}
		if depth == 0 {
			return strings.Join(parts, " "), nil
		}
	}
}

func (p *parser) optionName() (string, error) {
	var sb strings.Builder
	for {
		if p.is("(") {
			if err := p.advance(); err != nil {
				return "", err
			}
			name, err := p.fullIdent(true)
			if err != nil {
				return "", err
			}
			sb.WriteString("(" + name + ")")
			if err := p.expect(")"); err != nil {
				return "", err
			}
		} else {
			tok, err := p.ident()
			if err != nil {
				return "", err
			}
			sb.WriteString(tok.text)
		}
		if !p.is(".") {
			return sb.String(), nil
		}
		sb.WriteByte('.')
		if err := p.advance(); err != nil {
			return "", err
		}
	}
}

// option reads `name = constant` and returns the unescaped value too.
func (p *parser) option() (descriptor.Option, string, error) {
	name, err := p.optionName()
	if err != nil {
		return descriptor.Option{}, "", err
	}
	if err := p.expect("="); err != nil {
		return descriptor.Option{}, "", err
	}
	value, raw, err := p.constant()
	return descriptor.Option{Name: name, Value: raw}, value, err
}

// skipBlock skips a statement that may carry a brace-delimited body, such as
// service or extend.
func (p *parser) skipBlock() error {
	depth := 0
	for {
		switch {
		case p.tok.kind == tokEOF:
			return p.errorf(p.tok, "unexpected end of file")
		case p.is("{"):
			depth++
		case p.is("}"):
			depth--
			if depth == 0 {
				return p.advance()
			}
		case p.is(";") && depth == 0:
			return p.advance()
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
}

func (p *parser) parseFile() (*descriptor.FileDescriptor, error) {
	f := descriptor.NewFile(p.lex.file, descriptor.Proto2, "")
	p.file = f
	definitions := false

	if p.is("syntax") && p.tok.kind == tokIdent {
		f.Documentation = joinDoc(p.tok.doc)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		tok := p.tok
		s, err := p.stringLit()
		if err != nil {
			return nil, err
		}
		syntax, ok := descriptor.ParseSyntax(s)
		if !ok || s == "" {
			return nil, p.errorf(tok, "unsupported syntax %q", s)
		}
		f.Syntax = syntax
		if err := p.expect(";"); err != nil {
			return nil, err
		}
	}

	for {
		tok := p.tok
		if tok.kind == tokEOF {
			return f, nil
		}
		if tok.kind != tokIdent && !p.is(";") {
			return nil, p.errorf(tok, "unexpected %s", tok)
		}
		var err error
		switch tok.text {
		case ";":
			err = p.advance()
		case "import":
			err = p.parseImport()
		case "package":
			if f.Package != "" {
				return nil, p.errorf(tok, "multiple package declarations")
			}
			if definitions {
				return nil, p.errorf(tok, "package must be declared before any definition")
			}
			if err = p.advance(); err != nil {
				return nil, err
			}
			if f.Package, err = p.fullIdent(false); err != nil {
				return nil, err
			}
			err = p.expect(";")
		case "option":
			err = p.advance()
			if err == nil {
				var opt descriptor.Option
				if opt, _, err = p.option(); err == nil {
					f.Options = append(f.Options, opt)
					err = p.expect(";")
				}
			}
		case "message":
			definitions = true
			var m *descriptor.Descriptor
			if m, err = p.parseMessage(f.Package); err == nil {
				f.Messages = append(f.Messages, m)
			}
		case "enum":
			definitions = true
			var e *descriptor.EnumDescriptor
			if e, err = p.parseEnum(f.Package); err == nil {
				f.Enums = append(f.Enums, e)
			}
		case "service", "extend":
			err = p.skipBlock()
		case "syntax", "edition":
			return nil, p.errorf(tok, "%s must be the first statement", tok.text)
		default:
			return nil, p.errorf(tok, "unexpected %s", tok)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseImport() error {
	if err := p.advance(); err != nil {
		return err
	}
	public := false
	if p.tok.kind == tokIdent && (p.tok.text == "public" || p.tok.text == "weak") {
		public = p.tok.text == "public"
		if err := p.advance(); err != nil {
			return err
		}
	}
	tok := p.tok
	name, err := p.stringLit()
	if err != nil {
		return err
	}
	for _, existing := range p.file.Imports() {
		if existing == name {
			return p.errorf(tok, "%q imported twice", name)
		}
	}
	if public {
		p.file.PublicImports = append(p.file.PublicImports, name)
	} else {
		p.file.PrivateImports = append(p.file.PrivateImports, name)
	}
	return p.expect(";")
}

func (p *parser) parseMessage(scope string) (*descriptor.Descriptor, error) {
	doc := p.tok.doc
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	d := &descriptor.Descriptor{
		Name:          name.text,
		FullName:      qualify(scope, name.text),
		Documentation: joinDoc(doc),
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	if err := p.messageBody(d); err != nil {
		return nil, err
	}
	addSyntheticOneofs(d)
	return d, nil
}

func (p *parser) messageBody(d *descriptor.Descriptor) error {
	for !p.is("}") {
		tok := p.tok
		if tok.kind == tokEOF {
			return p.errorf(tok, "unexpected end of file in message %s", d.Name)
		}
		var err error
		switch {
		case p.is(";"):
			err = p.advance()
		case p.is("message"):
			var m *descriptor.Descriptor
			if m, err = p.parseMessage(d.FullName); err == nil {
				d.NestedMessages = append(d.NestedMessages, m)
			}
		case p.is("enum"):
			var e *descriptor.EnumDescriptor
			if e, err = p.parseEnum(d.FullName); err == nil {
				d.NestedEnums = append(d.NestedEnums, e)
			}
		case p.is("option"):
			if err = p.advance(); err == nil {
				var opt descriptor.Option
				if opt, _, err = p.option(); err == nil {
					d.Options = append(d.Options, opt)
					err = p.expect(";")
				}
			}
		case p.is("oneof"):
			err = p.parseOneof(d)
		case p.is("reserved"):
			err = p.parseReserved(&d.Reserved, d.FullName, protostream.MaxFieldNumber, 1)
		case p.is("extensions"), p.is("extend"):
			err = p.skipBlock()
		case p.is("map"):
			next, perr := p.peek()
			if perr != nil {
				return perr
			}
			if next.text == "<" && next.kind == tokSymbol {
				err = p.parseMap(d, -1)
			} else {
				err = p.parseField(d, -1)
			}
		default:
			err = p.parseField(d, -1)
		}
		if err != nil {
			return err
		}
	}
	return p.advance()
}

func (p *parser) parseField(d *descriptor.Descriptor, oneof int) error {
	start := p.tok
	doc := start.doc
	label := descriptor.LabelOptional
	labeled, proto3Optional := false, false
	if p.tok.kind == tokIdent {
		switch p.tok.text {
		case "required":
			label, labeled = descriptor.LabelRequired, true
		case "repeated":
			label, labeled = descriptor.LabelRepeated, true
		case "optional":
			labeled = true
			proto3Optional = p.file.Syntax == descriptor.Proto3
		}
	}
	if labeled {
		if oneof >= 0 {
			return p.errorf(start, "fields in a oneof must not have labels")
		}
		if err := p.advance(); err != nil {
			return err
		}
	} else if oneof < 0 && p.file.Syntax == descriptor.Proto2 {
		return p.errorf(start, "field in proto2 message %s must have a label", d.Name)
	}
	if p.is("group") && p.tok.kind == tokIdent {
		if p.file.Syntax == descriptor.Proto3 {
			return p.errorf(p.tok, "groups are not supported in proto3")
		}
		return p.parseGroup(d, label, oneof, doc)
	}
	if p.is("map") && p.tok.kind == tokIdent {
		if next, err := p.peek(); err != nil {
			return err
		} else if next.kind == tokSymbol && next.text == "<" {
			return p.errorf(start, "map fields cannot have labels")
		}
	}

	kind, typeName, err := p.fieldType()
	if err != nil {
		return err
	}
	name, err := p.ident()
	if err != nil {
		return err
	}
	if err := p.expect("="); err != nil {
		return err
	}
	number, err := p.intLit(math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	fd := descriptor.NewField(name.text, int32(number), label, kind)
	fd.TypeName = typeName
	fd.Proto3Optional = proto3Optional
	fd.OneofIndex = oneof
	fd.Documentation = joinDoc(doc)
	if p.is("[") {
		if err := p.fieldOptions(fd); err != nil {
			return err
		}
	}
	d.Fields = append(d.Fields, fd)
	return p.expect(";")
}

// fieldType reads a scalar keyword or a message/enum reference.
func (p *parser) fieldType() (descriptor.Kind, string, error) {
	if p.tok.kind == tokIdent {
		if k, ok := descriptor.ScalarKind(p.tok.text); ok {
			if next, err := p.peek(); err == nil && !(next.kind == tokSymbol && next.text == ".") {
				return k, "", p.advance()
			}
		}
	}
	name, err := p.fullIdent(true)
	return descriptor.KindInvalid, name, err
}

func (p *parser) fieldOptions(fd *descriptor.FieldDescriptor) error {
	if err := p.advance(); err != nil {
		return err
	}
	for {
		tok := p.tok
		opt, value, err := p.option()
		if err != nil {
			return err
		}
		switch opt.Name {
		case "default":
			if fd.Default.Valid {
				return p.errorf(tok, "default given twice")
			}
			fd.Default = null.StringFrom(value)
		case "packed":
			if value != "true" && value != "false" {
				return p.errorf(tok, "packed must be true or false")
			}
			fd.Packed = null.BoolFrom(value == "true")
		case "json_name":
			fd.JSONName = value
		case "deprecated":
			fd.Deprecated = value == "true"
		default:
			fd.Options = append(fd.Options, opt)
		}
		if p.is("]") {
			return p.advance()
		}
		if err := p.expect(","); err != nil {
			return err
		}
	}
}

func (p *parser) parseMap(d *descriptor.Descriptor, oneof int) error {
	start := p.tok
	if oneof >= 0 {
		return p.errorf(start, "map fields are not allowed in a oneof")
	}
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.expect("<"); err != nil {
		return err
	}
	keyTok := p.tok
	keyKind, keyType, err := p.fieldType()
	if err != nil {
		return err
	}
	if keyType != "" || !keyKind.IsValidMapKey() {
		return p.errorf(keyTok, "invalid map key type %s", keyTok.text)
	}
	if err := p.expect(","); err != nil {
		return err
	}
	valueKind, valueType, err := p.fieldType()
	if err != nil {
		return err
	}
	if err := p.expect(">"); err != nil {
		return err
	}
	name, err := p.ident()
	if err != nil {
		return err
	}
	if err := p.expect("="); err != nil {
		return err
	}
	number, err := p.intLit(math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	fd := addMapField(d, name.text, int32(number), keyKind, valueKind, valueType)
	fd.Documentation = joinDoc(start.doc)
	if p.is("[") {
		if err := p.fieldOptions(fd); err != nil {
			return err
		}
	}
	return p.expect(";")
}

// addMapField appends a map field and its synthesized entry message the way
// protoc lays them out.
func addMapField(d *descriptor.Descriptor, name string, number int32, key, value descriptor.Kind, valueType string) *descriptor.FieldDescriptor {
	entryName := mapEntryName(name)
	entry := &descriptor.Descriptor{
		Name:       entryName,
		FullName:   qualify(d.FullName, entryName),
		IsMapEntry: true,
	}
	v := descriptor.NewField("value", 2, descriptor.LabelOptional, value)
	v.TypeName = valueType
	entry.Fields = []*descriptor.FieldDescriptor{
		descriptor.NewField("key", 1, descriptor.LabelOptional, key),
		v,
	}
	d.NestedMessages = append(d.NestedMessages, entry)

	fd := descriptor.NewField(name, number, descriptor.LabelRepeated, descriptor.KindMessage)
	fd.TypeName = entryName
	d.Fields = append(d.Fields, fd)
	return fd
}

func mapEntryName(field string) string {
	var sb strings.Builder
	upper := true
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		sb.WriteByte(c)
	}
	sb.WriteString("Entry")
	return sb.String()
}

func (p *parser) parseGroup(d *descriptor.Descriptor, label descriptor.Label, oneof int, doc []string) error {
	if err := p.advance(); err != nil {
		return err
	}
	name, err := p.ident()
	if err != nil {
		return err
	}
	if c := name.text[0]; c < 'A' || c > 'Z' {
		return p.errorf(name, "group name %s must start with a capital letter", name.text)
	}
	if err := p.expect("="); err != nil {
		return err
	}
	number, err := p.intLit(math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	g := &descriptor.Descriptor{Name: name.text, FullName: qualify(d.FullName, name.text), Documentation: joinDoc(doc)}
	fd := descriptor.NewField(strings.ToLower(name.text), int32(number), label, descriptor.KindGroup)
	fd.TypeName = name.text
	fd.OneofIndex = oneof
	if p.is("[") {
		if err := p.fieldOptions(fd); err != nil {
			return err
		}
	}
	if err := p.expect("{"); err != nil {
		return err
	}
	if err := p.messageBody(g); err != nil {
		return err
	}
	d.NestedMessages = append(d.NestedMessages, g)
	d.Fields = append(d.Fields, fd)
	return nil
}

func (p *parser) parseOneof(d *descriptor.Descriptor) error {
	doc := p.tok.doc
	if err := p.advance(); err != nil {
		return err
	}
	name, err := p.ident()
	if err != nil {
		return err
	}
	idx := len(d.Oneofs)
	d.Oneofs = append(d.Oneofs, &descriptor.OneofDescriptor{Name: name.text, Documentation: joinDoc(doc)})
	if err := p.expect("{"); err != nil {
		return err
	}
	for !p.is("}") {
		switch {
		case p.tok.kind == tokEOF:
			return p.errorf(p.tok, "unexpected end of file in oneof %s", name.text)
		case p.is(";"):
			err = p.advance()
		case p.is("option"):
			if err = p.advance(); err == nil {
				if _, _, err = p.option(); err == nil {
					err = p.expect(";")
				}
			}
		case p.is("map"):
			err = p.parseMap(d, idx)
		default:
			err = p.parseField(d, idx)
		}
		if err != nil {
			return err
		}
	}
	return p.advance()
}

// parseReserved reads `reserved 1, 2, 5 to max;` or `reserved "a", "b";`.
func (p *parser) parseReserved(set *descriptor.ReservedSet, owner string, max, min int64) error {
	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.kind == tokString {
		for {
			tok := p.tok
			name, err := p.stringLit()
			if err != nil {
				return err
			}
			if err := set.AddName(owner, name); err != nil {
				return p.wrap(tok, err)
			}
			if !p.is(",") {
				return p.expect(";")
			}
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	for {
		tok := p.tok
		from, err := p.intLit(min, max)
		if err != nil {
			return err
		}
		to := from
		if p.is("to") && p.tok.kind == tokIdent {
			if err := p.advance(); err != nil {
				return err
			}
			if p.is("max") && p.tok.kind == tokIdent {
				to = max
				err = p.advance()
			} else {
				to, err = p.intLit(min, max)
			}
			if err != nil {
				return err
			}
		}
		if err := set.AddRange(owner, int32(from), int32(to)); err != nil {
			return p.wrap(tok, err)
		}
		if !p.is(",") {
			return p.expect(";")
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
}

func (p *parser) parseEnum(scope string) (*descriptor.EnumDescriptor, error) {
	doc := p.tok.doc
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	e := &descriptor.EnumDescriptor{
		Name:          name.text,
		FullName:      qualify(scope, name.text),
		Documentation: joinDoc(doc),
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	for !p.is("}") {
		tok := p.tok
		switch {
		case tok.kind == tokEOF:
			return nil, p.errorf(tok, "unexpected end of file in enum %s", e.Name)
		case p.is(";"):
			err = p.advance()
		case p.is("option"):
			if err = p.advance(); err != nil {
				break
			}
			var opt descriptor.Option
			var value string
			if opt, value, err = p.option(); err != nil {
				break
			}
			if opt.Name == "allow_alias" {
				e.AllowAlias = value == "true"
			} else {
				e.Options = append(e.Options, opt)
			}
			err = p.expect(";")
		case p.is("reserved"):
			err = p.parseReserved(&e.Reserved, e.FullName, math.MaxInt32, math.MinInt32)
		default:
			err = p.parseEnumValue(e)
		}
		if err != nil {
			return nil, err
		}
	}
	return e, p.advance()
}

func (p *parser) parseEnumValue(e *descriptor.EnumDescriptor) error {
	doc := p.tok.doc
	name, err := p.ident()
	if err != nil {
		return err
	}
	if err := p.expect("="); err != nil {
		return err
	}
	number, err := p.intLit(math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	v := &descriptor.EnumValueDescriptor{Name: name.text, Number: int32(number), Documentation: joinDoc(doc)}
	if p.is("[") {
		if err := p.advance(); err != nil {
			return err
		}
		for {
			opt, _, err := p.option()
			if err != nil {
				return err
			}
			v.Options = append(v.Options, opt)
			if p.is("]") {
				break
			}
			if err := p.expect(","); err != nil {
				return err
			}
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	e.Values = append(e.Values, v)
	return p.expect(";")
}

// addSyntheticOneofs gives each proto3 optional field its own oneof, after
// all declared ones, as protoc does.
func addSyntheticOneofs(d *descriptor.Descriptor) {
	taken := make(map[string]bool, len(d.Fields)+len(d.Oneofs))
	for _, f := range d.Fields {
		taken[f.Name] = true
	}
	for _, o := range d.Oneofs {
		taken[o.Name] = true
	}
	for _, f := range d.Fields {
		if !f.Proto3Optional || f.OneofIndex >= 0 {
			continue
		}
		name := "_" + f.Name
		for taken[name] {
			name = "X" + name
		}
		taken[name] = true
		f.OneofIndex = len(d.Oneofs)
		d.Oneofs = append(d.Oneofs, &descriptor.OneofDescriptor{Name: name, Synthetic: true})
	}
}

// joinDoc joins comment lines with newlines. Empty lines are kept.
func joinDoc(lines []string) string {
	return strings.Join(lines, "\n")
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}
