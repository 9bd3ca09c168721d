package ir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseType parses the printed form of a type, e.g. "i32*", "[4 x i8]" or
// "<{ i64, double }>".
func ParseType(s string) (Type, error) {
	p := &typeParser{src: s}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("type %q: unexpected %q at %d", s, p.src[p.pos:], p.pos)
	}
	return t, nil
}

// MustParseType is ParseType for literals known to be valid.
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) consume(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *typeParser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) parse() (Type, error) {
	base, err := p.parseBase()
	if err != nil {
		return nil, err
	}
	for p.consume("*") {
		base = Ptr(base)
	}
	return base, nil
}

func (p *typeParser) parseBase() (Type, error) {
	switch {
	case p.consume("<{"):
		fields, err := p.parseFields("}>")
		if err != nil {
			return nil, err
		}
		return Struct(true, fields...), nil
	case p.consume("{"):
		fields, err := p.parseFields("}")
		if err != nil {
			return nil, err
		}
		return Struct(false, fields...), nil
	case p.consume("["):
		n, err := strconv.ParseUint(p.word(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("type %q: bad array length: %w", p.src, err)
		}
		if p.word() != "x" {
			return nil, fmt.Errorf("type %q: expected 'x' in array type", p.src)
		}
		elem, err := p.parse()
		if err != nil {
			return nil, err
		}
		if !p.consume("]") {
			return nil, fmt.Errorf("type %q: unterminated array type", p.src)
		}
		return Array(elem, n), nil
	}

	w := p.word()
	switch w {
	case "void":
		return Void, nil
	case "half":
		return &FloatType{Bits: 16}, nil
	case "float":
		return Float, nil
	case "double":
		return Double, nil
	case "fp128":
		return &FloatType{Bits: 128}, nil
	case "":
		return nil, fmt.Errorf("type %q: expected type at %d", p.src, p.pos)
	}
	if w[0] == 'i' {
		bits, err := strconv.Atoi(w[1:])
		if err == nil && bits > 0 {
			return Int(bits), nil
		}
	}
	return nil, fmt.Errorf("type %q: unknown type %q", p.src, w)
}

func (p *typeParser) parseFields(closer string) ([]Type, error) {
	var fields []Type
	if p.consume(closer) {
		return fields, nil
	}
	for {
		t, err := p.parse()
		if err != nil {
			return nil, err
		}
		fields = append(fields, t)
		if p.consume(closer) {
			return fields, nil
		}
		if !p.consume(",") {
			return nil, fmt.Errorf("type %q: expected ',' or %q at %d", p.src, closer, p.pos)
		}
	}
}
