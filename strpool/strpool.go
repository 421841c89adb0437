// Package strpool dedupes string constants and renders them as C++ string
// literals for generated code.
package strpool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadLiteral is returned by Unescape for text that is not a literal
// produced by Escape (or an equivalent C++ narrow string literal).
var ErrBadLiteral = errors.New("bad string literal")

// Handle refers to one pooled string.
type Handle struct {
	ID      int
	Literal string
}

func (h Handle) String() string {
	return h.Literal
}

// Pool dedupes string values by exact equality. Values keep their
// first-seen IDs. A Pool belongs to one generated class.
type Pool struct {
	byValue map[string]int
	values  []string
	lits    []string
	size    int
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{byValue: make(map[string]int)}
}

// Intern returns the handle for value, adding it on first use.
func (p *Pool) Intern(value string) Handle {
	if id, ok := p.byValue[value]; ok {
		return Handle{ID: id, Literal: p.lits[id]}
	}
	id := len(p.values)
	lit := Escape(value)
	p.byValue[value] = id
	p.values = append(p.values, value)
	p.lits = append(p.lits, lit)
	p.size += len(EncodeModifiedUTF8(value)) + 1
	return Handle{ID: id, Literal: lit}
}

// Get returns the literal text for value, interning it.
func (p *Pool) Get(value string) string {
	return p.Intern(value).Literal
}

// Len returns the number of distinct values.
func (p *Pool) Len() int {
	return len(p.values)
}

// Values returns the pooled values in first-seen order.
func (p *Pool) Values() []string {
	out := make([]string, len(p.values))
	copy(out, p.values)
	return out
}

// Size returns the number of bytes the pooled values occupy as
// NUL-terminated modified UTF-8.
func (p *Pool) Size() int {
	return p.size
}

// Escape renders value as a double-quoted C++ literal whose bytes are the
// modified UTF-8 encoding of value. Printable ASCII is kept; quote,
// backslash and question mark are backslash-escaped; every other byte is a
// three-digit octal escape, so a following digit is never absorbed.
func Escape(value string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range EncodeModifiedUTF8(value) {
		switch {
		case c == '"' || c == '\\' || c == '?':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7F:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "\\%03o", c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

var simpleEscapes = map[byte]byte{
	'"': '"', '\\': '\\', '?': '?', '\'': '\'',
	'a': 0x07, 'b': 0x08, 'f': 0x0C, 'n': '\n', 'r': '\r', 't': '\t', 'v': 0x0B,
}

// Unescape decodes a C++ string literal the way the compiler and the JVM
// together would: escapes are resolved to bytes, and the bytes are read as
// modified UTF-8.
func Unescape(literal string) (string, error) {
	if len(literal) < 2 || literal[0] != '"' || literal[len(literal)-1] != '"' {
		return "", fmt.Errorf("%w: %q is not quoted", ErrBadLiteral, literal)
	}
	body := literal[1 : len(literal)-1]
	var raw []byte
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '"' {
			return "", fmt.Errorf("%w: unescaped quote at %d", ErrBadLiteral, i)
		}
		if c != '\\' {
			raw = append(raw, c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("%w: dangling backslash", ErrBadLiteral)
		}
		c = body[i]
		if v, ok := simpleEscapes[c]; ok {
			raw = append(raw, v)
			continue
		}
		switch {
		case c >= '0' && c <= '7':
			v := 0
			n := 0
			for n < 3 && i < len(body) && body[i] >= '0' && body[i] <= '7' {
				v = v*8 + int(body[i]-'0')
				i++
				n++
			}
			i--
			if v > 0xFF {
				return "", fmt.Errorf("%w: octal escape out of range", ErrBadLiteral)
			}
			raw = append(raw, byte(v))
		case c == 'x':
			v := 0
			n := 0
			for i+1 < len(body) && isHex(body[i+1]) {
				i++
				v = v*16 + hexVal(body[i])
				n++
				if v > 0xFF {
					return "", fmt.Errorf("%w: hex escape out of range", ErrBadLiteral)
				}
			}
			if n == 0 {
				return "", fmt.Errorf("%w: empty hex escape", ErrBadLiteral)
			}
			raw = append(raw, byte(v))
		default:
			return "", fmt.Errorf("%w: unknown escape \\%c", ErrBadLiteral, c)
		}
	}
	return DecodeModifiedUTF8(raw)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return int(c-'A') + 10
}
