package annotation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Value is one attribute value. Before validation Kind is the lexical kind of
// the literal; afterwards it is the configured kind of the attribute.
type Value struct {
	Kind   Kind
	Text   string // literal text, unquoted
	Nested *Annotation
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return strconv.Quote(v.Text)
	case KindChar:
		return "'" + v.Text + "'"
	case KindAnnotation:
		if v.Nested != nil {
			return v.Nested.String()
		}
	}
	return v.Text
}

// Int returns the value as an integer. ok is false for non-integral kinds.
func (v Value) Int() (int64, bool) {
	switch v.Kind {
	case KindInt, KindLong:
		n, err := strconv.ParseInt(v.Text, 0, 64)
		return n, err == nil
	}
	return 0, false
}

// Float returns the value as a float. Integral values convert.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindInt, KindLong, KindFloat, KindDouble:
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			n, ok := v.Int()
			return float64(n), ok
		}
		return f, true
	}
	return 0, false
}

// Bool returns the value as a boolean.
func (v Value) Bool() (bool, bool) {
	if v.Kind != KindBoolean {
		return false, false
	}
	return v.Text == "true", true
}

// Attribute is a named attribute of an annotation occurrence.
type Attribute struct {
	Name   string
	Values []Value
}

// Annotation is one @Name(...) occurrence in a doc comment.
type Annotation struct {
	Name       string
	Attributes []Attribute
	Offset     int
}

// Attribute returns the named attribute.
func (a *Annotation) Attribute(name string) (Attribute, bool) {
	for _, attr := range a.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Value returns the first value of the named attribute.
func (a *Annotation) Value(name string) (Value, bool) {
	attr, ok := a.Attribute(name)
	if !ok || len(attr.Values) == 0 {
		return Value{}, false
	}
	return attr.Values[0], true
}

// Int returns the named attribute as an integer.
func (a *Annotation) Int(name string) (int64, bool) {
	v, ok := a.Value(name)
	if !ok {
		return 0, false
	}
	return v.Int()
}

// StringValue returns the named attribute's text.
func (a *Annotation) StringValue(name string) (string, bool) {
	v, ok := a.Value(name)
	if !ok {
		return "", false
	}
	return v.Text, true
}

func (a *Annotation) set(name string, values []Value) {
	for i := range a.Attributes {
		if a.Attributes[i].Name == name {
			a.Attributes[i].Values = values
			return
		}
	}
	a.Attributes = append(a.Attributes, Attribute{Name: name, Values: values})
}

func (a *Annotation) String() string {
	var sb strings.Builder
	sb.WriteByte('@')
	sb.WriteString(a.Name)
	if len(a.Attributes) == 0 {
		return sb.String()
	}
	sb.WriteByte('(')
	for i, attr := range a.Attributes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(attr.Name)
		sb.WriteByte('=')
		if len(attr.Values) == 1 {
			sb.WriteString(attr.Values[0].String())
			continue
		}
		sb.WriteByte('{')
		for j, v := range attr.Values {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(v.String())
		}
		sb.WriteByte('}')
	}
	sb.WriteByte(')')
	return sb.String()
}

// convert checks that a parsed literal can be held by an attribute of kind want.
func convert(want Kind, v Value) (Value, error) {
	switch want {
	case KindString:
		if v.Kind != KindString {
			return v, fmt.Errorf("expected a string literal, got %s %s", v.Kind, v)
		}
	case KindChar:
		if v.Kind != KindChar || utf8.RuneCountInString(v.Text) != 1 {
			return v, fmt.Errorf("expected a single character, got %s", v)
		}
	case KindBoolean:
		if v.Kind != KindBoolean {
			return v, fmt.Errorf("expected true or false, got %s", v)
		}
	case KindInt, KindLong:
		if v.Kind != KindInt {
			return v, fmt.Errorf("expected an integer, got %s", v)
		}
		n, err := strconv.ParseInt(v.Text, 0, 64)
		if err != nil {
			return v, fmt.Errorf("integer %s out of range", v.Text)
		}
		if want == KindInt && (n < math.MinInt32 || n > math.MaxInt32) {
			return v, fmt.Errorf("integer %s out of range for int", v.Text)
		}
	case KindFloat, KindDouble:
		if v.Kind != KindInt && v.Kind != KindDouble {
			return v, fmt.Errorf("expected a number, got %s", v)
		}
		if _, err := strconv.ParseFloat(v.Text, 64); err != nil {
			if _, err := strconv.ParseInt(v.Text, 0, 64); err != nil {
				return v, fmt.Errorf("malformed number %s", v.Text)
			}
		}
	case KindIdentifier:
		if v.Kind != KindIdentifier {
			return v, fmt.Errorf("expected an identifier, got %s", v)
		}
	case KindAnnotation:
		if v.Kind != KindAnnotation || v.Nested == nil {
			return v, fmt.Errorf("expected an annotation, got %s", v)
		}
	default:
		return v, fmt.Errorf("unsupported attribute kind %s", want)
	}
	v.Kind = want
	return v, nil
}

// literal classifies an unquoted token produced by the doc comment parser, or
// a default given as text in a configuration.
func literal(text string) Value {
	switch {
	case text == "true" || text == "false":
		return Value{Kind: KindBoolean, Text: text}
	case len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"':
		s, err := strconv.Unquote(text)
		if err != nil {
			s = text[1 : len(text)-1]
		}
		return Value{Kind: KindString, Text: s}
	case len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'':
		return Value{Kind: KindChar, Text: text[1 : len(text)-1]}
	}
	if _, err := strconv.ParseInt(text, 0, 64); err == nil {
		return Value{Kind: KindInt, Text: text}
	}
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return Value{Kind: KindDouble, Text: text}
	}
	return Value{Kind: KindIdentifier, Text: text}
}

// defaultValue turns configuration text into a value of kind. String and char
// defaults may be given with or without quotes.
func defaultValue(kind Kind, text string) (Value, error) {
	v := literal(text)
	switch kind {
	case KindString:
		if v.Kind != KindString {
			v = Value{Kind: KindString, Text: text}
		}
	case KindChar:
		if v.Kind != KindChar {
			v = Value{Kind: KindChar, Text: text}
		}
	case KindFloat, KindDouble:
		// integral literals are accepted as is
	case KindIdentifier:
		if v.Kind == KindBoolean {
			v.Kind = KindIdentifier
		}
	}
	return convert(kind, v)
}
