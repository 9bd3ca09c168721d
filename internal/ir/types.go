// Package ir is a small typed SSA representation for lifted machine code.
// It tracks use-def chains so analyses can walk the users of a value and
// rewrite them in place.
package ir

import (
	"fmt"
	"strings"
)

// Kind classifies a Type.
type Kind int

const (
	VoidKind Kind = iota
	IntegerKind
	FloatKind
	PointerKind
	ArrayKind
	StructKind
)

func (k Kind) String() string {
	switch k {
	case VoidKind:
		return "void"
	case IntegerKind:
		return "integer"
	case FloatKind:
		return "float"
	case PointerKind:
		return "pointer"
	case ArrayKind:
		return "array"
	case StructKind:
		return "struct"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type is an IR type. Types are compared structurally, see Equal.
type Type interface {
	Kind() Kind
	String() string
}

type VoidType struct{}

func (VoidType) Kind() Kind     { return VoidKind }
func (VoidType) String() string { return "void" }

// IntType is an integer of an arbitrary bit width.
type IntType struct {
	Bits int
}

func (*IntType) Kind() Kind       { return IntegerKind }
func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }

// FloatType is an IEEE float of 32 or 64 bits.
type FloatType struct {
	Bits int
}

func (*FloatType) Kind() Kind { return FloatKind }
func (t *FloatType) String() string {
	switch t.Bits {
	case 16:
		return "half"
	case 32:
		return "float"
	case 64:
		return "double"
	case 128:
		return "fp128"
	}
	return fmt.Sprintf("f%d", t.Bits)
}

type PointerType struct {
	Elem Type
}

func (*PointerType) Kind() Kind       { return PointerKind }
func (t *PointerType) String() string { return t.Elem.String() + "*" }

type ArrayType struct {
	Elem Type
	Len  uint64
}

func (*ArrayType) Kind() Kind { return ArrayKind }
func (t *ArrayType) String() string {
	return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
}

// StructType is a literal (unnamed) structure. Packed structures have no
// alignment padding between their fields.
type StructType struct {
	Fields []Type
	Packed bool
}

func (*StructType) Kind() Kind { return StructKind }
func (t *StructType) String() string {
	var sb strings.Builder
	if t.Packed {
		sb.WriteString("<")
	}
	sb.WriteString("{")
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(" ")
		sb.WriteString(f.String())
	}
	if len(t.Fields) > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString("}")
	if t.Packed {
		sb.WriteString(">")
	}
	return sb.String()
}

var (
	Void   Type = VoidType{}
	I1          = Int(1)
	I8          = Int(8)
	I16         = Int(16)
	I32         = Int(32)
	I64         = Int(64)
	I128        = Int(128)
	Float       = &FloatType{Bits: 32}
	Double      = &FloatType{Bits: 64}
)

func Int(bits int) *IntType { return &IntType{Bits: bits} }

func Ptr(elem Type) *PointerType { return &PointerType{Elem: elem} }

func Array(elem Type, n uint64) *ArrayType { return &ArrayType{Elem: elem, Len: n} }

// Struct returns a literal structure type.
func Struct(packed bool, fields ...Type) *StructType {
	return &StructType{Fields: fields, Packed: packed}
}

// Equal reports whether two types are structurally identical. All types are
// literal, so the printed form is canonical.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// IsInteger reports whether t is an integer type.
func IsInteger(t Type) bool {
	return t != nil && t.Kind() == IntegerKind
}

// ElemOf returns the pointee of a pointer type, or nil.
func ElemOf(t Type) Type {
	if p, ok := t.(*PointerType); ok {
		return p.Elem
	}
	return nil
}
