package annotation

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse extracts the annotations of a doc comment. An annotation starts with
// '@' as the first non-blank character of a line and may span lines inside
// its parentheses:
//
//	@TypeId(42)
//	@Indexed(fields={"name", "age"}, analyzer=standard)
func Parse(doc string) ([]*Annotation, error) {
	p := &parser{s: doc}
	var out []*Annotation
	for p.pos < len(p.s) {
		p.skipBlanks()
		if p.peek() == '@' && p.pos+1 < len(p.s) && isIdentStart(p.s[p.pos+1]) {
			a, err := p.annotation()
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		p.skipLine()
	}
	return out, nil
}

type parser struct {
	s   string
	pos int
	ann string // annotation being parsed, for errors
}

func (p *parser) errorf(format string, args ...any) error {
	return &UsageError{Annotation: p.ann, Offset: p.pos, Err: ErrSyntax, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() byte {
	if p.pos < len(p.s) {
		return p.s[p.pos]
	}
	return 0
}

func (p *parser) skipBlanks() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) && strings.IndexByte(" \t\r\n", p.s[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *parser) skipLine() {
	if i := strings.IndexByte(p.s[p.pos:], '\n'); i >= 0 {
		p.pos += i + 1
		return
	}
	p.pos = len(p.s)
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.s) && (isIdentStart(p.s[p.pos]) || p.s[p.pos] == '.' || (p.s[p.pos] >= '0' && p.s[p.pos] <= '9')) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) annotation() (*Annotation, error) {
	a := &Annotation{Offset: p.pos}
	p.pos++ // '@'
	a.Name = p.ident()
	outer := p.ann
	p.ann = a.Name
	defer func() { p.ann = outer }()

	save := p.pos
	p.skipBlanks()
	if p.peek() != '(' {
		p.pos = save
		return a, nil
	}
	p.pos++
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return a, nil
	}

	for {
		p.skipSpace()
		name := "value"
		mark := p.pos
		if isIdentStart(p.peek()) {
			id := p.ident()
			p.skipSpace()
			if p.peek() == '=' {
				p.pos++
				name = id
			} else {
				p.pos = mark
			}
		}
		if _, dup := a.Attribute(name); dup {
			return nil, p.errorf("attribute %s given more than once", name)
		}
		p.skipSpace()
		values, err := p.values()
		if err != nil {
			return nil, err
		}
		a.Attributes = append(a.Attributes, Attribute{Name: name, Values: values})

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return a, nil
		default:
			return nil, p.errorf("expected ',' or ')'")
		}
	}
}

func (p *parser) values() ([]Value, error) {
	if p.peek() != '{' {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil
	}
	p.pos++
	var out []Value
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *parser) value() (Value, error) {
	switch c := p.peek(); c {
	case 0:
		return Value{}, p.errorf("unexpected end of comment")
	case '@':
		nested, err := p.annotation()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindAnnotation, Text: nested.Name, Nested: nested}, nil
	case '"', '\'':
		start := p.pos
		p.pos++
		for p.pos < len(p.s) && p.s[p.pos] != c {
			if p.s[p.pos] == '\\' {
				p.pos++
			}
			p.pos++
		}
		if p.pos >= len(p.s) {
			return Value{}, p.errorf("unterminated literal")
		}
		p.pos++
		raw := p.s[start:p.pos]
		if c == '\'' {
			return Value{Kind: KindChar, Text: raw[1 : len(raw)-1]}, nil
		}
		s, err := strconv.Unquote(raw)
		if err != nil {
			return Value{}, p.errorf("malformed string %s", raw)
		}
		return Value{Kind: KindString, Text: s}, nil
	}
	start := p.pos
	for p.pos < len(p.s) && strings.IndexByte(",)}= \t\r\n", p.s[p.pos]) < 0 {
		p.pos++
	}
	if p.pos == start {
		return Value{}, p.errorf("expected a value")
	}
	return literal(p.s[start:p.pos]), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
