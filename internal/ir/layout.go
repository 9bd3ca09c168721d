package ir

import "fmt"

// Layout answers size and alignment questions about types.
type Layout interface {
	// StoreSize is the number of bytes written by a store of the type.
	StoreSize(t Type) uint64
	// AllocSize is StoreSize rounded up to the type's alignment; it is the
	// stride between consecutive array elements.
	AllocSize(t Type) uint64
	// Align is the ABI alignment of the type.
	Align(t Type) uint64
}

// DataLayout is a little-endian LP64-style layout where scalars are
// naturally aligned up to MaxAlign bytes.
type DataLayout struct {
	PointerSize uint64
	MaxAlign    uint64
}

// DefaultLayout matches x86-64 and AArch64 Linux.
var DefaultLayout = &DataLayout{PointerSize: 8, MaxAlign: 16}

func (dl *DataLayout) StoreSize(t Type) uint64 {
	switch t := t.(type) {
	case VoidType:
		return 0
	case *IntType:
		return uint64(t.Bits+7) / 8
	case *FloatType:
		return uint64(t.Bits) / 8
	case *PointerType:
		return dl.PointerSize
	case *ArrayType:
		return t.Len * dl.AllocSize(t.Elem)
	case *StructType:
		return dl.structSize(t)
	}
	panic(fmt.Sprintf("ir: no store size for %v", t))
}

func (dl *DataLayout) AllocSize(t Type) uint64 {
	return alignTo(dl.StoreSize(t), dl.Align(t))
}

func (dl *DataLayout) Align(t Type) uint64 {
	switch t := t.(type) {
	case VoidType:
		return 1
	case *IntType, *FloatType, *PointerType:
		a := uint64(1)
		for a < dl.StoreSize(t) && a < dl.MaxAlign {
			a *= 2
		}
		return a
	case *ArrayType:
		return dl.Align(t.Elem)
	case *StructType:
		if t.Packed {
			return 1
		}
		a := uint64(1)
		for _, f := range t.Fields {
			a = max(a, dl.Align(f))
		}
		return a
	}
	panic(fmt.Sprintf("ir: no alignment for %v", t))
}

// FieldOffset returns the byte offset of field i of a structure.
func FieldOffset(l Layout, t *StructType, i int) uint64 {
	var off uint64
	for j, f := range t.Fields {
		if !t.Packed {
			off = alignTo(off, l.Align(f))
		}
		if j == i {
			break
		}
		off += l.AllocSize(f)
	}
	return off
}

func (dl *DataLayout) structSize(t *StructType) uint64 {
	if len(t.Fields) == 0 {
		return 0
	}
	last := len(t.Fields) - 1
	size := FieldOffset(dl, t, last) + dl.AllocSize(t.Fields[last])
	if !t.Packed {
		size = alignTo(size, dl.Align(t))
	}
	return size
}

func alignTo(n, a uint64) uint64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// IndexedType walks the indices of a getelementptr over a value of pointer
// type ptr and returns the type being addressed, or nil when an index does
// not apply. The first index steps over the pointer itself.
func IndexedType(ptr Type, indices []Value) Type {
	elem := ElemOf(ptr)
	if elem == nil || len(indices) == 0 {
		return nil
	}
	cur := elem
	for _, idx := range indices[1:] {
		switch t := cur.(type) {
		case *StructType:
			c, ok := idx.(*Const)
			if !ok || c.Int < 0 || int(c.Int) >= len(t.Fields) {
				return nil
			}
			cur = t.Fields[c.Int]
		case *ArrayType:
			cur = t.Elem
		default:
			return nil
		}
	}
	return cur
}

// IndexedOffset returns the byte offset addressed by a getelementptr with
// constant indices over a value of pointer type ptr.
func IndexedOffset(l Layout, ptr Type, indices []Value) (int64, error) {
	elem := ElemOf(ptr)
	if elem == nil {
		return 0, fmt.Errorf("getelementptr over non-pointer %v", ptr)
	}
	var off int64
	cur := Type(elem)
	for i, idx := range indices {
		c, ok := idx.(*Const)
		if !ok {
			return 0, fmt.Errorf("getelementptr index %d is not constant", i)
		}
		if i == 0 {
			off += c.Int * int64(l.AllocSize(cur))
			continue
		}
		switch t := cur.(type) {
		case *StructType:
			if c.Int < 0 || int(c.Int) >= len(t.Fields) {
				return 0, fmt.Errorf("field %d out of range for %v", c.Int, t)
			}
			off += int64(FieldOffset(l, t, int(c.Int)))
			cur = t.Fields[c.Int]
		case *ArrayType:
			off += c.Int * int64(l.AllocSize(t.Elem))
			cur = t.Elem
		default:
			return 0, fmt.Errorf("cannot index into %v", cur)
		}
	}
	return off, nil
}
