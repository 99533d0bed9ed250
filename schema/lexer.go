package schema

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type tokenKind int8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokSymbol
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokIdent:
		return "identifier"
	case tokInt:
		return "integer"
	case tokFloat:
		return "number"
	case tokString:
		return "string"
	}
	return "symbol"
}

type token struct {
	kind tokenKind
	text string // unescaped value for strings
	line int
	col  int

	// doc holds the comment block directly above the token, one entry per
	// comment line.
	doc []string
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of file"
	}
	return fmt.Sprintf("%q", t.text)
}

// lexer splits schema text into tokens and collects the comments preceding
// each one.
type lexer struct {
	file string
	src  string
	pos  int
	line int
	col  int

	lastLine int // line of the previous token, for trailing comments
	doc      []string
}

func newLexer(file, src string) *lexer {
	return &lexer{file: file, src: src, line: 1, col: 1}
}

func (l *lexer) errorf(line, col int, format string, args ...any) error {
	return &ParseError{File: l.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

// skip consumes white space and comments. A blank line ends a comment block;
// a comment on the line of the previous token belongs to that token.
func (l *lexer) skip() error {
	newlines := 0
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			newlines++
			if newlines > 1 {
				l.doc = nil
			}
			l.advance(1)
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			l.advance(1)
		case c == '/' && l.peekByte(1) == '/':
			trailing := l.line == l.lastLine && l.lastLine > 0
			end := strings.IndexByte(l.src[l.pos:], '\n')
			if end < 0 {
				end = len(l.src) - l.pos
			}
			text := l.src[l.pos+2 : l.pos+end]
			l.advance(end)
			if !trailing {
				l.doc = append(l.doc, commentLine(text))
			}
			newlines = 0
		case c == '/' && l.peekByte(1) == '*':
			line, col := l.line, l.col
			trailing := l.line == l.lastLine && l.lastLine > 0
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return l.errorf(line, col, "unterminated block comment")
			}
			text := l.src[l.pos+2 : l.pos+2+end]
			l.advance(end + 4)
			if !trailing {
				l.doc = append(l.doc, blockCommentLines(text)...)
			}
			newlines = 0
		default:
			return nil
		}
	}
	return nil
}

func commentLine(text string) string {
	text = strings.TrimSuffix(text, "\r")
	return strings.TrimPrefix(text, " ")
}

func blockCommentLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "*") {
			line = strings.TrimPrefix(trimmed[1:], " ")
		} else if i > 0 {
			line = trimmed
		} else {
			line = strings.TrimPrefix(line, " ")
		}
		if (i == 0 || i == len(lines)-1) && line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func (l *lexer) next() (token, error) {
	if err := l.skip(); err != nil {
		return token{}, err
	}
	tok := token{line: l.line, col: l.col, doc: l.doc}
	l.doc = nil
	l.lastLine = l.line
	if l.pos >= len(l.src) {
		tok.kind = tokEOF
		return tok, nil
	}

	c := l.src[l.pos]
	start := l.pos
	switch {
	case isLetter(c):
		for l.pos < len(l.src) && (isLetter(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.advance(1)
		}
		tok.kind, tok.text = tokIdent, l.src[start:l.pos]
	case isDigit(c) || (c == '.' && isDigit(l.peekByte(1))):
		tok.kind, tok.text = l.number()
	case c == '"' || c == '\'':
		s, err := l.str(c)
		if err != nil {
			return tok, err
		}
		tok.kind, tok.text = tokString, s
	default:
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if r == utf8.RuneError || !strings.ContainsRune("{}[]()<>;,=.-+:/", r) {
			return tok, l.errorf(l.line, l.col, "unexpected character %q", r)
		}
		l.advance(size)
		tok.kind, tok.text = tokSymbol, string(r)
	}
	l.lastLine = l.line
	return tok, nil
}

func (l *lexer) number() (tokenKind, string) {
	start := l.pos
	kind := tokInt
	if l.src[l.pos] == '0' && (l.peekByte(1) == 'x' || l.peekByte(1) == 'X') {
		l.advance(2)
		for l.pos < len(l.src) && isHexDigit(l.src[l.pos]) {
			l.advance(1)
		}
		return kind, l.src[start:l.pos]
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isDigit(c):
		case c == '.':
			kind = tokFloat
		case c == 'e' || c == 'E':
			kind = tokFloat
			if n := l.peekByte(1); n == '+' || n == '-' {
				l.advance(1)
			}
		default:
			return kind, l.src[start:l.pos]
		}
		l.advance(1)
	}
	return kind, l.src[start:l.pos]
}

// str reads a quoted string and resolves C-style escapes.
func (l *lexer) str(quote byte) (string, error) {
	line, col := l.line, l.col
	l.advance(1)
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			return "", l.errorf(line, col, "unterminated string")
		}
		c := l.src[l.pos]
		if c == quote {
			l.advance(1)
			return sb.String(), nil
		}
		if c != '\\' {
			sb.WriteByte(c)
			l.advance(1)
			continue
		}
		l.advance(1)
		if l.pos >= len(l.src) {
			return "", l.errorf(line, col, "unterminated string")
		}
		e := l.src[l.pos]
		l.advance(1)
		switch e {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '\\', '\'', '"', '?':
			sb.WriteByte(e)
		case 'x', 'X':
			v, n := l.digits(16, 2)
			if n == 0 {
				return "", l.errorf(l.line, l.col, "invalid hex escape")
			}
			sb.WriteByte(byte(v))
		case 'u', 'U':
			width := 4
			if e == 'U' {
				width = 8
			}
			v, n := l.digits(16, width)
			if n != width || !utf8.ValidRune(rune(v)) {
				return "", l.errorf(l.line, l.col, "invalid unicode escape")
			}
			sb.WriteRune(rune(v))
		default:
			if e >= '0' && e <= '7' {
				l.pos--
				l.col--
				v, _ := l.digits(8, 3)
				if v > 0xff {
					return "", l.errorf(l.line, l.col, "octal escape out of range")
				}
				sb.WriteByte(byte(v))
				continue
			}
			return "", l.errorf(l.line, l.col, "invalid escape \\%c", e)
		}
	}
}

func (l *lexer) digits(base, max int) (int, int) {
	v, n := 0, 0
	for n < max && l.pos < len(l.src) {
		d := digitValue(l.src[l.pos])
		if d < 0 || d >= base {
			break
		}
		v = v*base + d
		n++
		l.advance(1)
	}
	return v, n
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func isLetter(c byte) bool   { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return digitValue(c) >= 0 }
