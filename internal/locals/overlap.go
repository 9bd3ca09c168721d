package locals

import (
	"cmp"
	"slices"

	"stackframe/internal/ir"
)

// Access is an object of a known type placed at an offset.
type Access struct {
	Offset int64
	Object ObjectID
	Type   ir.Type
}

func (a Access) end(l ir.Layout) int64 {
	return a.Offset + int64(l.StoreSize(a.Type))
}

// Group is a set of accesses whose byte ranges chain into one overlapping
// span. Groups are values: Insert returns a new group.
type Group struct {
	accesses []Access
	end      int64
}

func (g Group) Len() int { return len(g.accesses) }

// Accesses returns the accesses in insertion order.
func (g Group) Accesses() []Access { return slices.Clone(g.accesses) }

// End is one past the last byte covered by any access of the group.
func (g Group) End() int64 { return g.end }

// Insert adds a to the group. It fails when the group is not empty and a
// starts at or after the group's end. Accesses must be inserted in
// increasing offset order.
func (g Group) Insert(l ir.Layout, a Access) (Group, bool) {
	if len(g.accesses) > 0 && a.Offset >= g.end {
		return g, false
	}
	end := a.end(l)
	if len(g.accesses) > 0 {
		end = max(end, g.end)
	}
	return Group{accesses: append(slices.Clip(g.accesses), a), end: end}, true
}

// Reduction is the type chosen to represent an overlap group.
type Reduction struct {
	Type ir.Type
	// Fields is 1 when one access covers the whole group and Type is that
	// access's type. Otherwise Type is a packed struct of Body.
	Fields int
	Body   []ir.Type
	// Indices gives the Body element each access starts at. It is nil when
	// Fields is 1.
	Indices map[ObjectID]int
}

// Reduce picks a representative type for the group: the access with the
// greatest offset (then the largest, then the most structured) anchors a
// packed struct that is grown with integer padding on both sides until it
// covers every access. Every access of the group then starts at an element
// boundary.
func Reduce(l ir.Layout, g Group) (Reduction, error) {
	switch len(g.accesses) {
	case 0:
		return Reduction{}, &InvariantError{What: "reducing an empty overlap group"}
	case 1:
		t := g.accesses[0].Type
		return Reduction{Type: t, Fields: 1, Body: []ir.Type{t}}, nil
	}

	sorted := slices.Clone(g.accesses)
	slices.SortStableFunc(sorted, func(a, b Access) int {
		if c := cmp.Compare(b.Offset, a.Offset); c != 0 {
			return c
		}
		if c := cmp.Compare(l.StoreSize(b.Type), l.StoreSize(a.Type)); c != 0 {
			return c
		}
		return cmp.Compare(priority(b.Type), priority(a.Type))
	})

	anchor := sorted[0]
	start, end := anchor.Offset, anchor.end(l)
	// front holds prepended elements, nearest to the anchor first.
	var front []ir.Type
	back := []ir.Type{anchor.Type}
	// Number of front elements present when each access was placed; the
	// access sits at body element 0 at that time.
	placed := map[ObjectID]int{anchor.Object: 0}
	fields := 1
	for _, a := range sorted[1:] {
		if d := start - a.Offset; d > 0 {
			front = append(front, padding(d)...)
			start = a.Offset
			fields++
		}
		if d := a.end(l) - end; d > 0 {
			back = append(back, padding(d)...)
			end = a.end(l)
		}
		placed[a.Object] = len(front)
	}
	if fields == 1 {
		return Reduction{Type: anchor.Type, Fields: 1, Body: []ir.Type{anchor.Type}}, nil
	}

	body := make([]ir.Type, 0, len(front)+len(back))
	for i := len(front) - 1; i >= 0; i-- {
		body = append(body, front[i])
	}
	body = append(body, back...)
	indices := make(map[ObjectID]int, len(placed))
	for obj, n := range placed {
		indices[obj] = len(front) - n
	}
	return Reduction{Type: ir.Struct(true, body...), Fields: fields, Body: body, Indices: indices}, nil
}

// padding returns integer types adding up to n bytes, in the order they are
// laid out going away from the anchor.
func padding(n int64) []ir.Type {
	var out []ir.Type
	if n > 16 {
		words := n / 8
		out = append(out, ir.Array(ir.I64, uint64(words)))
		n -= words * 8
	}
	for _, size := range []int64{8, 4, 2, 1} {
		for n >= size {
			out = append(out, ir.Int(int(size*8)))
			n -= size
		}
	}
	return out
}

// priority breaks ties between equally sized accesses at one offset.
func priority(t ir.Type) int {
	switch t.Kind() {
	case ir.ArrayKind:
		return 5
	case ir.StructKind:
		return 4
	case ir.PointerKind:
		return 3
	case ir.FloatKind:
		return 2
	case ir.IntegerKind:
		return 1
	}
	return 0
}
